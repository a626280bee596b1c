package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	assert.Equal(t, "twittersphere 0.13.0 (store schema 13)", GetVersion())
}
