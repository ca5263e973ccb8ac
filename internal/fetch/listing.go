package fetch

import (
	"bufio"
	"bytes"
	"context"
	"html/template"
	"os/exec"
	"strings"

	"github.com/ipfs/ipfs-cache-gateway/internal/cache"
)

// directoryItem is one row of a synthesized directory listing.
type directoryItem struct {
	Name string
	CID  string
}

type listingTemplateData struct {
	Path    string
	Listing []directoryItem
}

// listingTemplate renders the synthesized HTML directory index.
// Grounded on the teacher's package-init html/template.Must(...Parse(...))
// idiom in core/corehttp/gateway_handler.go.
var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head><title>Index of {{.Path}}</title></head>
<body>
<h1>Index of {{.Path}}</h1>
<ul>
{{range .Listing}}<li><a href="{{.Name}}">{{.Name}}</a> ({{.CID}})</li>
{{end}}</ul>
</body>
</html>`))

// tryLocalListing invokes the configured local IPFS binary to list baseURI
// as a directory. If the binary produces at least one entry, the listing is
// rendered and cached as text/html and returned; otherwise (nil, nil) is
// returned so the caller falls through to gateway racing.
func (p *Pool) tryLocalListing(ctx context.Context, url, baseURI string) (*Data, error) {
	cmd := exec.CommandContext(ctx, p.cfg.IPFSBinaryPath, "ls", "-s", "--size=false", "--resolve-type=false", baseURI)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	items, err := parseListing(out)
	if err != nil || len(items) == 0 {
		return nil, err
	}

	var buf bytes.Buffer
	if err := listingTemplate.Execute(&buf, listingTemplateData{Path: ipfsPathForLog(baseURI), Listing: items}); err != nil {
		return nil, err
	}

	filename, err := cache.StreamWrite(p.cfg.CacheRoot, url, "text/html", &buf)
	if err != nil {
		return nil, err
	}

	size, err := fileSize(filename)
	if err != nil {
		return nil, err
	}

	if err := p.store.Upsert(ctx, url, "text/html", size); err != nil {
		log.Warnw("failed to upsert directory listing", "url", url, "error", err)
	}

	return &Data{ContentType: "text/html", Filename: filename}, nil
}

// parseListing parses "ipfs ls" output: one non-empty line per entry, each
// a whitespace-separated (cid, filename) pair (spec.md §4.5 step 3).
func parseListing(out []byte) ([]directoryItem, error) {
	var items []directoryItem
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		items = append(items, directoryItem{CID: fields[0], Name: fields[1]})
	}
	return items, scanner.Err()
}

func ipfsPathForLog(baseURI string) string {
	return "/ipfs/" + baseURI
}
