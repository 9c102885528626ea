package processed

import (
	"fmt"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
)

// Fields names the processed-data entries of one wavelength channel.
// Behavior is optional.
type Fields struct {
	Photometry string
	Behavior   string
	Index      string
}

// Resolved holds the decoded entries of one channel.
type Resolved struct {
	Fields     Fields
	Photometry Photometry
	Behavior   Behavior
	Window     model.InclusionWindow
}

// Resolve decodes every field of f up front so that a missing or malformed
// field fails before any alignment work.
func Resolve(doc *Document, f Fields) (Resolved, error) {
	if f.Photometry == "" || f.Index == "" {
		return Resolved{}, fmt.Errorf("photometry and index fields are required")
	}

	out := Resolved{Fields: f}
	var err error
	if out.Photometry, err = doc.Photometry(f.Photometry); err != nil {
		return Resolved{}, err
	}
	if out.Window, err = doc.Index(f.Index); err != nil {
		return Resolved{}, err
	}
	if f.Behavior != "" {
		if out.Behavior, err = doc.Behavior(f.Behavior); err != nil {
			return Resolved{}, err
		}
	}
	return out, nil
}
