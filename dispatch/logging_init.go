package dispatch

import "github.com/tsnorri/libbio-sub001/internal/xlog"

func init() {
	SetPanicHandler(xlog.LogPanic)
}
