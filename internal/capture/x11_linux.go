//go:build linux && cgo

package capture

/*
#cgo LDFLAGS: -lX11 -lXext -lXrandr -lXfixes

#include <X11/Xlib.h>
#include <X11/Xutil.h>
#include <X11/extensions/Xrandr.h>
#include <X11/extensions/Xfixes.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
    Display* display;
    Window root;
    int width;
    int height;
    int hasFixes;
} oc_x11;

typedef struct {
    int x;
    int y;
    int width;
    int height;
    int primary;
    char name[64];
} oc_monitor;

// oc_open connects to $DISPLAY. Returns NULL when no server is reachable.
static oc_x11* oc_open(void) {
    Display* dpy = XOpenDisplay(NULL);
    if (dpy == NULL) {
        return NULL;
    }
    oc_x11* c = calloc(1, sizeof(oc_x11));
    if (c == NULL) {
        XCloseDisplay(dpy);
        return NULL;
    }
    int screen = DefaultScreen(dpy);
    c->display = dpy;
    c->root = RootWindow(dpy, screen);
    c->width = DisplayWidth(dpy, screen);
    c->height = DisplayHeight(dpy, screen);

    int ev, er;
    c->hasFixes = XFixesQueryExtension(dpy, &ev, &er) ? 1 : 0;
    return c;
}

static void oc_close(oc_x11* c) {
    if (c == NULL) {
        return;
    }
    if (c->display != NULL) {
        XCloseDisplay(c->display);
    }
    free(c);
}

// oc_monitors fills out with up to max monitors and returns the count.
// Falls back to the whole root window when RandR reports nothing.
static int oc_monitors(oc_x11* c, oc_monitor* out, int max) {
    int n = 0;
    XRRMonitorInfo* mons = XRRGetMonitors(c->display, c->root, True, &n);
    if (mons == NULL || n == 0) {
        if (mons != NULL) {
            XRRFreeMonitors(mons);
        }
        if (max < 1) {
            return 0;
        }
        memset(&out[0], 0, sizeof(oc_monitor));
        out[0].width = c->width;
        out[0].height = c->height;
        out[0].primary = 1;
        strncpy(out[0].name, "screen", sizeof(out[0].name) - 1);
        return 1;
    }
    if (n > max) {
        n = max;
    }
    for (int i = 0; i < n; i++) {
        memset(&out[i], 0, sizeof(oc_monitor));
        out[i].x = mons[i].x;
        out[i].y = mons[i].y;
        out[i].width = mons[i].width;
        out[i].height = mons[i].height;
        out[i].primary = mons[i].primary ? 1 : 0;
        char* name = XGetAtomName(c->display, mons[i].name);
        if (name != NULL) {
            strncpy(out[i].name, name, sizeof(out[i].name) - 1);
            XFree(name);
        }
    }
    XRRFreeMonitors(mons);
    return n;
}

// oc_grab copies a root window rectangle into dst as packed BGRA.
// Returns 0 on success, 1 when XGetImage fails, 2 on an unsupported depth.
static int oc_grab(oc_x11* c, int x, int y, int w, int h, unsigned char* dst) {
    XImage* img = XGetImage(c->display, c->root, x, y, w, h, AllPlanes, ZPixmap);
    if (img == NULL) {
        return 1;
    }
    int rc = 0;
    int stride = w * 4;
    if (img->bits_per_pixel == 32 && img->byte_order == LSBFirst) {
        for (int row = 0; row < h; row++) {
            unsigned char* d = dst + row * stride;
            memcpy(d, img->data + row * img->bytes_per_line, stride);
            for (int i = 3; i < stride; i += 4) {
                d[i] = 255;
            }
        }
    } else if (img->bits_per_pixel == 32 || img->bits_per_pixel == 24 || img->bits_per_pixel == 16) {
        for (int row = 0; row < h; row++) {
            for (int col = 0; col < w; col++) {
                unsigned long p = XGetPixel(img, col, row);
                unsigned char* d = dst + row * stride + col * 4;
                if (img->bits_per_pixel == 16) {
                    d[0] = (p & 0x1F) * 255 / 31;
                    d[1] = ((p >> 5) & 0x3F) * 255 / 63;
                    d[2] = ((p >> 11) & 0x1F) * 255 / 31;
                } else {
                    d[0] = p & 0xFF;
                    d[1] = (p >> 8) & 0xFF;
                    d[2] = (p >> 16) & 0xFF;
                }
                d[3] = 255;
            }
        }
    } else {
        rc = 2;
    }
    XDestroyImage(img);
    return rc;
}

// oc_cursor alpha-blends the current pointer image into a grabbed region.
static int oc_cursor(oc_x11* c, int rx, int ry, int w, int h, unsigned char* dst) {
    if (!c->hasFixes) {
        return 1;
    }
    XFixesCursorImage* ci = XFixesGetCursorImage(c->display);
    if (ci == NULL) {
        return 2;
    }
    int ox = ci->x - ci->xhot - rx;
    int oy = ci->y - ci->yhot - ry;
    for (int cy = 0; cy < ci->height; cy++) {
        int ty = oy + cy;
        if (ty < 0 || ty >= h) {
            continue;
        }
        for (int cx = 0; cx < ci->width; cx++) {
            int tx = ox + cx;
            if (tx < 0 || tx >= w) {
                continue;
            }
            unsigned long argb = ci->pixels[cy * ci->width + cx];
            unsigned int a = (argb >> 24) & 0xFF;
            if (a == 0) {
                continue;
            }
            // XFixes pixels are premultiplied.
            unsigned char* d = dst + ty * w * 4 + tx * 4;
            unsigned int inv = 255 - a;
            d[0] = (unsigned char)((argb & 0xFF) + d[0] * inv / 255);
            d[1] = (unsigned char)(((argb >> 8) & 0xFF) + d[1] * inv / 255);
            d[2] = (unsigned char)(((argb >> 16) & 0xFF) + d[2] * inv / 255);
        }
    }
    XFree(ci);
    return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

const maxMonitors = 16

// x11Backend grabs the root window of the default X screen. Works under
// Xwayland only for X11 clients' content.
type x11Backend struct {
	mu  sync.Mutex
	ctx *C.oc_x11
}

func newPlatformBackend() (Backend, error) {
	ctx := C.oc_open()
	if ctx == nil {
		return nil, fmt.Errorf("%w: failed to open X11 display (is DISPLAY set?)", ErrNotSupported)
	}
	return &x11Backend{ctx: ctx}, nil
}

func (b *x11Backend) ListMonitors() ([]Monitor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, fmt.Errorf("x11 backend closed")
	}

	var out [maxMonitors]C.oc_monitor
	n := int(C.oc_monitors(b.ctx, &out[0], C.int(maxMonitors)))
	if n == 0 {
		return nil, ErrNoMonitors
	}

	monitors := make([]Monitor, 0, n)
	for i := 0; i < n; i++ {
		m := out[i]
		monitors = append(monitors, Monitor{
			Index:     i,
			Name:      C.GoString(&m.name[0]),
			X:         int(m.x),
			Y:         int(m.y),
			Width:     int(m.width),
			Height:    int(m.height),
			IsPrimary: m.primary != 0,
		})
	}
	return monitors, nil
}

func (b *x11Backend) Grab(region Region, dst []byte) error {
	if len(dst) != region.FrameSize() || region.Empty() {
		return fmt.Errorf("grab %s: buffer is %d bytes, want %d", region, len(dst), region.FrameSize())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return fmt.Errorf("x11 backend closed")
	}

	rc := C.oc_grab(b.ctx, C.int(region.X), C.int(region.Y), C.int(region.Width), C.int(region.Height),
		(*C.uchar)(unsafe.Pointer(&dst[0])))
	switch rc {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("XGetImage failed for %s", region)
	case 2:
		return fmt.Errorf("unsupported X visual depth")
	default:
		return fmt.Errorf("unknown grab error: %d", int(rc))
	}
}

func (b *x11Backend) CompositeCursor(region Region, dst []byte) error {
	if len(dst) != region.FrameSize() || region.Empty() {
		return fmt.Errorf("cursor %s: buffer size mismatch", region)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return fmt.Errorf("x11 backend closed")
	}

	switch C.oc_cursor(b.ctx, C.int(region.X), C.int(region.Y), C.int(region.Width), C.int(region.Height),
		(*C.uchar)(unsafe.Pointer(&dst[0]))) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("XFixes extension unavailable")
	default:
		return fmt.Errorf("XFixesGetCursorImage failed")
	}
}

func (b *x11Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		C.oc_close(b.ctx)
		b.ctx = nil
	}
	return nil
}

var (
	_ Backend          = (*x11Backend)(nil)
	_ CursorCompositor = (*x11Backend)(nil)
)
