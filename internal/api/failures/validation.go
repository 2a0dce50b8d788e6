package failures

import (
	"fmt"
	"unicode/utf8"
)

const (
	maxSourceLength = 256
	maxErrorLength  = 4096
)

func validateReport(req *ReportRequest) error {
	if req.Source == "" {
		return fmt.Errorf("source is required")
	}
	if utf8.RuneCountInString(req.Source) > maxSourceLength {
		return fmt.Errorf("source must be at most %d characters", maxSourceLength)
	}
	if utf8.RuneCountInString(req.Error) > maxErrorLength {
		return fmt.Errorf("error must be at most %d characters", maxErrorLength)
	}
	return nil
}
