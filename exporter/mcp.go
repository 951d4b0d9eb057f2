package exporter

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/iEdric/VectorMotionPro/svgmeta"
)

// RegisterMCP registers the export tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerAnalyze(srv)
	s.registerExport(srv)
}

func (s *Service) registerAnalyze(srv *mcp.Server) {
	type req struct {
		SVG string `json:"svg" jsonschema:"SVG markup to analyze"`
	}

	tool := &mcp.Tool{
		Name:        "svg_analyze",
		Description: "Inspect SVG markup and report animation kind, dimensions, and a suggested capture duration",
	}

	mcp.AddTool(srv, tool, func(ctx context.Context, _ *mcp.CallToolRequest, p req) (*mcp.CallToolResult, svgmeta.Hint, error) {
		if p.SVG == "" {
			return nil, svgmeta.Hint{}, fmt.Errorf("svg markup is required")
		}
		return nil, s.exporter.Suggest(ctx, p.SVG), nil
	})
}

type mcpExportResult struct {
	MIME       string `json:"mime"`
	Size       int    `json:"size"`
	DataBase64 string `json:"dataBase64"`
}

func (s *Service) registerExport(srv *mcp.Server) {
	type req struct {
		SVG         string   `json:"svg" jsonschema:"SVG markup to export"`
		Format      string   `json:"format,omitempty" jsonschema:"Output container: gif, mp4, or webm (default gif)"`
		FPS         float64  `json:"fps,omitempty" jsonschema:"Frames per second (default 30)"`
		Duration    float64  `json:"duration,omitempty" jsonschema:"Capture window in seconds"`
		Scale       float64  `json:"scale,omitempty" jsonschema:"Output scale factor (default 1)"`
		Quality     *float64 `json:"quality,omitempty" jsonschema:"Encoding quality in [0,1] (0 = minimum bitrate, default 0.8)"`
		Transparent bool     `json:"transparent,omitempty" jsonschema:"Preserve alpha where the container allows it"`
	}

	tool := &mcp.Tool{
		Name:        "svg_export",
		Description: "Render an animated SVG to GIF, MP4, or WebM and return the finished file base64-encoded",
	}

	mcp.AddTool(srv, tool, func(ctx context.Context, _ *mcp.CallToolRequest, p req) (*mcp.CallToolResult, mcpExportResult, error) {
		if p.SVG == "" {
			return nil, mcpExportResult{}, fmt.Errorf("svg markup is required")
		}

		var format Format
		if p.Format != "" {
			f, err := ParseFormat(p.Format)
			if err != nil {
				return nil, mcpExportResult{}, err
			}
			format = f
		}

		settings := Settings{
			Format:      format,
			FPS:         p.FPS,
			Duration:    p.Duration,
			Scale:       p.Scale,
			Quality:     p.Quality,
			Transparent: p.Transparent,
		}

		res, err := s.exporter.Export(ctx, Sanitize(p.SVG), settings, nil)
		if err != nil {
			return nil, mcpExportResult{}, err
		}

		return nil, mcpExportResult{
			MIME:       res.MIME,
			Size:       len(res.Bytes),
			DataBase64: base64.StdEncoding.EncodeToString(res.Bytes),
		}, nil
	})
}
