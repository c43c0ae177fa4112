//go:build !gocv

package video

import "errors"

func newCaptureOpener(int) (Opener, error) {
	return nil, errors.New("gocv decoder unavailable (build with -tags gocv)")
}
