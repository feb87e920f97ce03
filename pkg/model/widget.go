package model

import "fmt"

// Widget is the logical record held by the store. Instances are plain
// values; the store never hands out anything mutable.
type Widget struct {
	ID     int32
	X      int32
	Y      int32
	Z      int32
	Width  int32
	Height int32
}

func (w Widget) String() string {
	return fmt.Sprintf("widget[%d](%d,%d,z=%d,%dx%d)", w.ID, w.X, w.Y, w.Z, w.Width, w.Height)
}
