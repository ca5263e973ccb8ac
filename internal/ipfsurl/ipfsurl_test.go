package ipfsurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCID = "bafybeicugp6ayh2wh3j2dwb2bhesmxmo2husbbs5prla4wj6rf3ivg3344"

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"bare cid", "ipfs://" + validCID, validCID, false},
		{"with path", "ipfs://" + validCID + "/metadata/1", validCID + "/metadata/1", false},
		{"trailing slash", "ipfs://" + validCID + "/", validCID + "/", false},
		{"missing scheme", validCID, "", true},
		{"empty path", "ipfs://", "", true},
		{"bad cid", "ipfs://not-a-cid/metadata", "", true},
		{"http scheme", "http://" + validCID, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Validate(tc.url)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsDirectory(t *testing.T) {
	assert.True(t, IsDirectory(validCID+"/metadata/"))
	assert.False(t, IsDirectory(validCID+"/metadata"))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, validCID+"/", Join(validCID))
	assert.Equal(t, validCID+"/", Join(validCID+"/"))
}

func TestWithScheme(t *testing.T) {
	assert.Equal(t, "ipfs://"+validCID, WithScheme(validCID))
}
