package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"

	"github.com/go-pdf/fpdf"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/lehigh-university-libraries/shelfripper/internal/models"
)

// DefaultDPI is the resolution assumed for page images without their own
const DefaultDPI = 96

// ErrNoPages is returned when there is nothing to assemble
var ErrNoPages = errors.New("document: no pages to assemble")

// Options configures an Assembler
type Options struct {
	DPI     float64
	Creator string
	Logger  *slog.Logger
}

// Assembler turns an ordered sequence of page images into one PDF
type Assembler struct {
	dpi     float64
	creator string
	logger  *slog.Logger
}

// NewAssembler creates an Assembler, applying defaults for zero options
func NewAssembler(opts Options) *Assembler {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	if opts.Creator == "" {
		opts.Creator = "shelfripper"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Assembler{dpi: opts.DPI, creator: opts.Creator, logger: opts.Logger}
}

// pageImage is a page ready to embed
type pageImage struct {
	kind   string // fpdf image type
	data   []byte
	width  int
	height int
}

// Assemble writes one PDF page per image, in the order given, each page sized to its image.
// Pages are neither reordered nor checked for completeness.
func (a *Assembler) Assemble(pages []models.PageImage) (models.Document, error) {
	if len(pages) == 0 {
		return models.Document{}, ErrNoPages
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: 595.28, Ht: 841.89},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator(a.creator, true)

	for i, page := range pages {
		img, err := prepare(page.Data)
		if err != nil {
			return models.Document{}, &models.EncodingError{Page: page.Number, Err: err}
		}

		name := fmt.Sprintf("page-%d", i+1)
		opts := fpdf.ImageOptions{ImageType: img.kind}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.data))
		if err := pdf.Error(); err != nil {
			return models.Document{}, &models.EncodingError{Page: page.Number, Err: err}
		}

		w := float64(img.width) * 72 / a.dpi
		h := float64(img.height) * 72 / a.dpi
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
		pdf.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return models.Document{}, fmt.Errorf("failed to write PDF: %w", err)
	}

	a.logger.Debug("Assembled document", "pages", len(pages), "bytes", buf.Len())
	return models.Document{Data: buf.Bytes(), Pages: len(pages)}, nil
}

// prepare decodes a page and converts anything other than JPEG to an 8-bit PNG
func prepare(data []byte) (pageImage, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return pageImage{}, err
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return pageImage{}, fmt.Errorf("empty %s image", format)
	}

	if format == "jpeg" {
		return pageImage{kind: "JPG", data: data, width: bounds.Dx(), height: bounds.Dy()}, nil
	}

	// 16-bit PNGs are not embeddable, so flatten wide formats first
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		flat := image.NewNRGBA(bounds)
		draw.Draw(flat, bounds, img, bounds.Min, draw.Src)
		img = flat
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return pageImage{}, fmt.Errorf("failed to re-encode %s image: %w", format, err)
	}
	return pageImage{kind: "PNG", data: buf.Bytes(), width: bounds.Dx(), height: bounds.Dy()}, nil
}
