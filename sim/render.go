package sim

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"github.com/oxtoacart/bpool"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	bufPool = bpool.NewBufferPool(8)

	colorBackground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	colorText       = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	colorLink       = color.RGBA{R: 0x1a, G: 0x0d, B: 0xab, A: 0xff}
	colorControl    = color.RGBA{R: 0x76, G: 0x76, B: 0x76, A: 0xff}
	colorButton     = color.RGBA{R: 0xef, G: 0xef, B: 0xef, A: 0xff}
	colorImage      = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
	colorFocus      = color.RGBA{R: 0x10, G: 0x6b, B: 0xe0, A: 0xff}
)

// render paints the viewport of d and encodes it as PNG. Text is drawn as
// bars one line high, controls as outlined boxes.
func render(d *document) ([]byte, error) {
	d.layout()
	w, h := int(d.width), int(d.height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	for _, n := range d.order {
		b := d.boxes[n]
		r := image.Rect(int(b.x), int(b.y-d.scrollY), int(b.x+b.w), int(b.y+b.h-d.scrollY))
		if !r.Overlaps(img.Bounds()) {
			continue
		}
		paint(img, d, n, r)
	}

	buf := bufPool.Get()
	defer bufPool.Put(buf)
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func paint(img *image.RGBA, d *document, n *html.Node, r image.Rectangle) {
	switch n.DataAtom {
	case atom.Img:
		fill(img, r, colorImage)
		return
	case atom.Hr:
		fill(img, image.Rect(r.Min.X, r.Min.Y+lineHeight/2, r.Max.X, r.Min.Y+lineHeight/2+1), colorControl)
		return
	case atom.Button:
		control := image.Rect(r.Min.X, r.Min.Y+2, r.Min.X+max(charWidth*(len([]rune(textContent(n)))+2), 2*charWidth), r.Min.Y+lineHeight-2)
		fill(img, control, colorButton)
		outline(img, control, colorControl)
		textBars(img, control.Min.X+charWidth, control.Min.Y, r.Dx(), textContent(n), colorText)
		return
	case atom.Input, atom.Select, atom.Textarea:
		if inputType(n) == "hidden" {
			return
		}
		control := image.Rect(r.Min.X, r.Min.Y+2, r.Min.X+min(r.Dx(), 20*charWidth), r.Max.Y-2)
		c := colorControl
		if d.focus == n {
			c = colorFocus
		}
		outline(img, control, c)
		textBars(img, control.Min.X+4, control.Min.Y, control.Dx()-8, d.value(n), colorText)
		return
	}

	c := colorText
	if closest(n, atom.A) != nil {
		c = colorLink
	}
	var sb strings.Builder
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.TextNode {
			sb.WriteString(ch.Data)
			sb.WriteByte(' ')
		}
	}
	textBars(img, r.Min.X, r.Min.Y, r.Dx(), strings.Join(strings.Fields(sb.String()), " "), c)
}

// textBars draws text as one bar per line, wrapped at width.
func textBars(img *image.RGBA, x, y, width int, text string, c color.Color) {
	perLine := max(1, width/charWidth)
	for n := len([]rune(text)); n > 0; n -= perLine {
		fill(img, image.Rect(x, y+lineHeight/3, x+min(n, perLine)*charWidth, y+2*lineHeight/3), c)
		y += lineHeight
	}
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func outline(img *image.RGBA, r image.Rectangle, c color.Color) {
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), c)
	fill(img, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), c)
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), c)
	fill(img, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), c)
}
