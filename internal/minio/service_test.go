package minio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyJoinsPrefix(t *testing.T) {
	assert.Equal(t, "recordings/CA1.mp3", (&MinioClient{PathPrefix: "recordings"}).Key("CA1.mp3"))
	assert.Equal(t, "recordings/CA1.mp3", (&MinioClient{PathPrefix: "recordings/"}).Key("CA1.mp3"))
	assert.Equal(t, "CA1.mp3", (&MinioClient{}).Key("CA1.mp3"))
}
