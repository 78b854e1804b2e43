package engine

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
)

func TestIsAdDomain(t *testing.T) {
	assert.True(t, isAdDomain("doubleclick.net"))
	assert.True(t, isAdDomain("pagead2.GoogleSyndication.com"))
	assert.False(t, isAdDomain("example.com"))
	assert.False(t, isAdDomain("notdoubleclick.net"))
}

func TestShouldBlock(t *testing.T) {
	blocked := map[proto.NetworkResourceType]struct{}{
		proto.NetworkResourceTypeImage: {},
	}

	assert.True(t, shouldBlock(proto.NetworkResourceTypeImage, "example.com", blocked, false))
	assert.False(t, shouldBlock(proto.NetworkResourceTypeDocument, "example.com", blocked, true))
	assert.True(t, shouldBlock(proto.NetworkResourceTypeScript, "www.google-analytics.com", blocked, true))
	assert.False(t, shouldBlock(proto.NetworkResourceTypeScript, "www.google-analytics.com", blocked, false))
}

func TestIsAdDomain_ParentsAndTrailingDot(t *testing.T) {
	assert.True(t, isAdDomain("static.ads-twitter.com."))
	assert.True(t, isAdDomain("a.b.c.hotjar.com"))
	assert.False(t, isAdDomain(""))
	assert.False(t, isAdDomain("com"))
}
