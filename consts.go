package uvc

import "github.com/kevmo314/go-uvchost/pkg/controls"

// BufType is the V4L2 buffer type passed to SetBuf.
type BufType uint32

const (
	BufTypeVideoCapture BufType = 1
)

// Control classes accepted by the control calls. A zero class matches any
// control.
const (
	ClassAny    controls.Class = 0
	ClassUser                  = controls.ClassUser
	ClassCamera                = controls.ClassCamera
)
