package ocr

import (
	"errors"

	"go.uber.org/fx"
)

var ErrNotConfigured = errors.New("ocr_not_configured")

var Module = fx.Module("providers.ocr",
	fx.Provide(func() TextExtractor { return NoOpExtractor{} }),
)
