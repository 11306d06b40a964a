package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgPkg "github.com/xhad/pdfalt/pkg/config"
	"github.com/xhad/pdfalt/pkg/imagestore"
)

func TestXMLPath(t *testing.T) {
	assert.Equal(t, "docs/report.xml", xmlPath("docs/report.pdf"))
	assert.Equal(t, "report.xml", xmlPath("report.xml"))
	assert.Equal(t, "report.xml", xmlPath("report"))
}

func TestNewSink(t *testing.T) {
	c := &cfgPkg.Config{}
	c.Images.Sink = "none"
	sink, err := newSink(c, "report.pdf")
	require.NoError(t, err)
	assert.IsType(t, imagestore.Discard{}, sink)

	c.Images.Sink = "dir"
	c.Images.Dir = "extracted_images"
	sink, err = newSink(c, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, &imagestore.Dir{Path: "extracted_images"}, sink)
}

func TestNewPipelineWithoutGenerator(t *testing.T) {
	c, err := cfgPkg.LoadConfig("")
	require.NoError(t, err)
	c.Images.Sink = "none"

	p, err := newPipeline(c, pipelineOptions{input: "report.pdf"})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestNewArchiveDisabled(t *testing.T) {
	c := &cfgPkg.Config{}
	archive, err := newArchive(context.Background(), c)
	require.NoError(t, err)
	assert.Nil(t, archive)
}
