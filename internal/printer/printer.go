package printer

import "github.com/featden/featd/internal/model"

// Printer knows how to print feature session information in different formats.
type Printer interface {
	PrintSessionList(sessions []model.FeatureSession) error
	PrintSession(session model.FeatureSession) error
	PrintMessage(msg string) error
}
