package service

import "transclip/pkg/types"

// ClippingHandler is notified after a capture is persisted.
type ClippingHandler interface {
	HandleClipping(clip *types.Clipping)
}
