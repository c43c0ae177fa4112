// Package motion computes frame-to-frame motion activity for a video.
//
// Each frame is reduced to 8-bit luma, smoothed with a Gaussian kernel, and
// differenced against the previous smoothed frame. Pixels whose absolute
// difference exceeds PixelThreshold contribute BinaryValue to the frame's
// sample, and a frame counts as motion when its sample exceeds Threshold.
// The first decoded frame becomes the thumbnail and produces no sample.
//
// The profiler is deterministic: the same frames and options always produce
// the same Profile.
package motion
