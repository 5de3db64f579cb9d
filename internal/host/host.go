// Package host abstracts the browser environment the navigation runtime
// drives: history, location, scrolling, storage and the signals it reads
// back (online status, cookies, viewport, frames).
package host

import (
	"context"
	"strings"
)

// Host is everything the runtime touches outside itself.
type Host interface {
	PushState(url string)
	ReplaceState(url string)
	Assign(url string)
	LocationReplace(url string)
	Reload()
	Hostname() string
	// Path is the current path plus query string.
	Path() string

	ScrollToTop()
	ScrollIntoView(id string)
	// LockScroll pins the scroll position; onScroll still fires on every
	// scroll attempt. UnlockScroll frees it again.
	LockScroll(onScroll func())
	UnlockScroll(onScroll func())

	CopyToClipboard(text string) error
	SetLocalStorage(key, value string)
	SetSessionStorage(key, value string)
	ReloadFrame(id string)
	ReloadFramesByClass(name string)

	Online() bool
	HasCookie(name string) bool
	Environment() Env

	// NextFrame blocks until the next animation frame or ctx is done.
	NextFrame(ctx context.Context) error
	ElementExists(id string) bool
	// DocumentData returns the embedded page data of the current document.
	DocumentData() (string, bool)
}

// Env is the viewport and device metadata attached to module flags.
type Env struct {
	Width    int  `json:"width"`
	Height   int  `json:"height"`
	IPhoneX  int  `json:"iphoneX"`
	Notch    int  `json:"notch"`
	DarkMode bool `json:"darkMode"`
}

// Device describes the screen as the browser reports it.
type Device struct {
	UserAgent    string
	ScreenWidth  int
	ScreenHeight int
	PixelRatio   float64

	// Orientation is window.orientation in degrees when HasOrientation.
	HasOrientation bool
	Orientation    int
	// OrientationType is screen.orientation.type, e.g. "landscape-primary".
	OrientationType string
}

// IsIPhoneX reports whether the device has the 1242x2688 physical screen of
// the notched iPhones.
func IsIPhoneX(userAgent string, width, height int, ratio float64) bool {
	if !isIOS(userAgent) {
		return false
	}
	if ratio <= 0 {
		ratio = 1
	}
	w := int(float64(width) * ratio)
	h := int(float64(height) * ratio)
	return w == 1242 && h == 2688
}

func isIOS(ua string) bool {
	if strings.Contains(ua, "MSStream") {
		return false
	}
	return strings.Contains(ua, "iPad") || strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPod")
}

// DetectNotch returns 1 when the notch is on the left, -1 when on the right
// and 0 otherwise.
func DetectNotch(d Device) int {
	if !IsIPhoneX(d.UserAgent, d.ScreenWidth, d.ScreenHeight, d.PixelRatio) {
		return 0
	}
	if d.HasOrientation {
		switch d.Orientation {
		case 90:
			return 1
		case -90:
			return -1
		}
		return 0
	}
	switch d.OrientationType {
	case "landscape-primary":
		return 1
	case "landscape-secondary":
		return -1
	}
	return 0
}

// EnvFor builds an Env for a viewport on device d.
func EnvFor(d Device, innerWidth, innerHeight int, darkMode bool) Env {
	e := Env{Width: innerWidth, Height: innerHeight, DarkMode: darkMode}
	if IsIPhoneX(d.UserAgent, d.ScreenWidth, d.ScreenHeight, d.PixelRatio) {
		e.IPhoneX = 1
	}
	e.Notch = DetectNotch(d)
	return e
}
