// Package channels implements the asynchronous prediction surface: chat and
// messaging requests are acknowledged at once and answered later through a
// Notifier.
package channels

import (
	"fmt"
	"strings"

	"github.com/aristath/foresight/internal/domain"
)

// InvalidFormatText is the reply to a message that is not a prediction command
const InvalidFormatText = "Invalid Parameter. Format: NPS or NAS <stock_symbol>"

const commandPrefix = "/predict"

// ParseCommand reads "<MARKET> <SYMBOL>", optionally preceded by /predict
// (or /predict@botname), case-insensitively.
func ParseCommand(text string) (domain.Instrument, error) {
	fields := strings.Fields(text)
	if len(fields) > 0 && strings.HasPrefix(strings.ToLower(fields[0]), commandPrefix) {
		head := strings.ToLower(fields[0])
		if head == commandPrefix || strings.HasPrefix(head, commandPrefix+"@") {
			fields = fields[1:]
		}
	}
	if len(fields) != 2 {
		return domain.Instrument{}, domain.Errorf(domain.KindInvalidInput, "parse command", text,
			"expected <MARKET> <SYMBOL>, got %d fields", len(fields))
	}
	return domain.NewInstrument(fields[0], fields[1])
}

// AckText is the immediate acknowledgement of an accepted request
func AckText(inst domain.Instrument) string {
	return fmt.Sprintf("Request received for %s (%s). You will receive the prediction shortly.", inst.Symbol, inst.Market)
}

// ResultText formats a computed prediction
func ResultText(inst domain.Instrument, value float64) string {
	return fmt.Sprintf("Prediction for %s: %.2f", inst.Symbol, value)
}

// ErrorText is the user-facing reply for a failed request. Internal error
// detail is never included.
func ErrorText(inst domain.Instrument, err error) string {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return InvalidFormatText
	case domain.KindModelNotFound:
		return fmt.Sprintf("No trained model for %s yet.", inst.Symbol)
	case domain.KindDataNotFound:
		return fmt.Sprintf("No training data for %s yet.", inst.Symbol)
	case domain.KindInsufficientData:
		return fmt.Sprintf("Not enough price history for %s yet.", inst.Symbol)
	case domain.KindStoreUnavailable:
		return "Prediction service is temporarily unavailable. Please try again later."
	default:
		return fmt.Sprintf("Error processing %s.", inst.Symbol)
	}
}
