package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/docbench/checksum"
	"github.com/pithecene-io/docbench/cli/render"
	"github.com/pithecene-io/docbench/codec"
	"github.com/pithecene-io/docbench/wire"
)

// UploadResponse is the result of the upload command.
type UploadResponse struct {
	File     string `json:"file"`
	Bytes    int64  `json:"bytes"`
	Checksum string `json:"checksum"`
}

// SearchResponse is the result of the search command.
type SearchResponse struct {
	Term  string   `json:"term"`
	Count int      `json:"count"`
	IDs   []uint64 `json:"ids"`
}

// DeleteResponse is the result of the delete command.
type DeleteResponse struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
}

// DownloadResponse is the result of the download command.
type DownloadResponse struct {
	ID       uint64 `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Checksum string `json:"checksum"`
	// Verified is set only when --verify was given.
	Verified *bool `json:"verified,omitempty"`
}

// StatusResponse is the result of the status command.
type StatusResponse struct {
	Server    string `json:"server"`
	Documents uint64 `json:"documents"`
}

// UploadCommand returns the upload command.
func UploadCommand() *cli.Command {
	return &cli.Command{
		Name:  "upload",
		Usage: "Upload one document",
		Flags: withOutputFlags(
			&cli.StringFlag{
				Name:     "file-path",
				Usage:    "Path to the document to upload",
				Required: true,
			},
		),
		Action: func(c *cli.Context) error {
			return withCodec(c, func(s *settings, cc *codec.Codec, r *render.Renderer) error {
				path := c.String("file-path")
				if err := cc.Upload(c.Context, path); err != nil {
					return commandError("upload "+path, err)
				}
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				sum, err := checksum.File(path)
				if err != nil {
					return err
				}
				s.logger.Debug("document uploaded", map[string]any{"file": path, "bytes": info.Size()})
				return r.Render(UploadResponse{File: path, Bytes: info.Size(), Checksum: sum})
			})
		},
	}
}

// SearchCommand returns the search command.
// A term with no matches is not an error; it renders an empty id list.
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "List the ids of documents containing a term",
		Flags: withOutputFlags(
			&cli.StringFlag{
				Name:     "term",
				Usage:    "Search term",
				Required: true,
			},
		),
		Action: func(c *cli.Context) error {
			return withCodec(c, func(_ *settings, cc *codec.Codec, r *render.Renderer) error {
				term := c.String("term")
				ids, err := cc.Search(c.Context, term)
				if err != nil && !errors.Is(err, codec.ErrNotFound) {
					return commandError("search "+term, err)
				}
				if ids == nil {
					ids = []uint64{}
				}
				return r.Render(SearchResponse{Term: term, Count: len(ids), IDs: ids})
			})
		},
	}
}

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a document by id",
		Flags: withOutputFlags(
			&cli.Uint64Flag{
				Name:     "document-id",
				Usage:    "Document id",
				Required: true,
			},
		),
		Action: func(c *cli.Context) error {
			return withCodec(c, func(_ *settings, cc *codec.Codec, r *render.Renderer) error {
				id := c.Uint64("document-id")
				if err := cc.Delete(c.Context, id); err != nil {
					return commandError(fmt.Sprintf("delete %d", id), err)
				}
				return r.Render(DeleteResponse{ID: id, Status: codec.StatusDeleted})
			})
		},
	}
}

// DownloadCommand returns the download command.
func DownloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download a document to a local file",
		Flags: withOutputFlags(
			&cli.Uint64Flag{
				Name:     "document-id",
				Usage:    "Document id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Output path (default: document_<id>.txt)",
			},
			&cli.StringFlag{
				Name:  "verify",
				Usage: "Compare the download against a local file by BLAKE3 digest",
			},
		),
		Action: downloadAction,
	}
}

func downloadAction(c *cli.Context) error {
	return withCodec(c, func(s *settings, cc *codec.Codec, r *render.Renderer) error {
		id := c.Uint64("document-id")
		path, err := cc.Download(c.Context, id, c.String("out"))
		if err != nil {
			return commandError(fmt.Sprintf("download %d", id), err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		sum, err := checksum.File(path)
		if err != nil {
			return err
		}
		resp := DownloadResponse{ID: id, Path: path, Bytes: info.Size(), Checksum: sum}

		if local := c.String("verify"); local != "" {
			want, err := checksum.File(local)
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			ok := want == sum
			resp.Verified = &ok
			if err := r.Render(resp); err != nil {
				return err
			}
			if !ok {
				s.logger.Warn("download checksum mismatch", map[string]any{"id": id, "path": path, "reference": local})
				return cli.Exit(fmt.Sprintf("download %d: content differs from %s", id, local), 1)
			}
			return nil
		}
		return r.Render(resp)
	})
}

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show how many documents the server has indexed",
		Flags: OutputFlags(),
		Action: func(c *cli.Context) error {
			return withCodec(c, func(s *settings, cc *codec.Codec, r *render.Renderer) error {
				n, err := cc.Status(c.Context)
				if err != nil {
					return commandError("status", err)
				}
				return r.Render(StatusResponse{Server: s.wire.Addr, Documents: n})
			})
		},
	}
}

// withCodec loads settings and a renderer, then runs fn with a codec.
func withCodec(c *cli.Context, fn func(*settings, *codec.Codec, *render.Renderer) error) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	s, err := loadSettings(c)
	if err != nil {
		return err
	}
	defer func() { _ = s.logger.Sync() }()

	cc, err := s.newCodec(nil)
	if err != nil {
		return err
	}
	return fn(s, cc, r)
}

// commandError turns a command failure into an operator-facing exit error.
func commandError(op string, err error) error {
	var msg string
	switch {
	case errors.Is(err, codec.ErrFileNotFound):
		msg = fmt.Sprintf("%s: local file not found", op)
	case errors.Is(err, codec.ErrNotFound):
		msg = fmt.Sprintf("%s: document not found", op)
	case wire.IsServerError(err):
		msg = fmt.Sprintf("%s: server reported an error", op)
	case wire.IsSourceError(err):
		msg = fmt.Sprintf("%s: reading local file: %v", op, err)
	case wire.IsConnectionError(err):
		msg = fmt.Sprintf("%s: connection failed: %v", op, err)
	default:
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	return cli.Exit(msg, 1)
}
