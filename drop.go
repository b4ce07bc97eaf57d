package dropper

import (
	"context"
	"errors"
	"fmt"
	"io"

	"impractical.co/dropper/magicnumber"
	"yall.in"
)

// the number of bytes read from a file to sniff its type.
const sniffBytes = 512

var (
	// ErrFileTooLarge is the reason given for files bigger than the
	// Store's MaxSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrTypeNotAccepted is the reason given for files that don't match
	// the Store's Accept filter.
	ErrTypeNotAccepted = errors.New("file type not accepted")
)

// Rejection is a file turned away before it reached the Store, and why.
type Rejection struct {
	File   RawFile
	Reason error
}

// Filter splits raws into the files the Store would accept and the ones it
// wouldn't, based on its MaxSize and Accept settings. A file is accepted
// when its declared content type or its extension matches Accept, or
// failing that, when its magic number does.
func (s *Store) Filter(ctx context.Context, raws []RawFile) ([]RawFile, []Rejection) {
	log := yall.FromContext(ctx)
	accept := magicnumber.ParseAccept(s.accept)

	var accepted []RawFile
	var rejected []Rejection
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		if s.maxSize > 0 && raw.Size() > s.maxSize {
			rejected = append(rejected, Rejection{File: raw, Reason: ErrFileTooLarge})
			continue
		}
		if !accept.MatchMIME(raw.ContentType()) && !accept.MatchName(raw.Name()) {
			if err := sniff(raw, accept); err != nil {
				log.WithField("dropper.file", raw.Name()).WithError(err).Debug("[dropper] file type not accepted")
				rejected = append(rejected, Rejection{File: raw, Reason: fmt.Errorf("%w: %s", ErrTypeNotAccepted, err)})
				continue
			}
		}
		accepted = append(accepted, raw)
	}
	return accepted, rejected
}

// sniff checks the start of raw's content against accept.
func sniff(raw RawFile, accept magicnumber.Accept) error {
	rc, err := raw.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	checker := &magicnumber.Checker{Accept: accept}
	_, err = io.CopyN(checker, rc, sniffBytes)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return checker.Close()
}

// Drop handles a batch of files dropped by the user. Rejections become
// warnings: one per file too large, and one listing every other rejected
// file. Accepted files are added in order until the maximum number of files
// is reached, at which point a single warning is added for the batch. Drop
// returns the files that were added.
func (s *Store) Drop(ctx context.Context, accepted []RawFile, rejected []Rejection) []*File {
	log := yall.FromContext(ctx)
	log = log.WithField("dropper.accepted", len(accepted))
	log = log.WithField("dropper.rejected", len(rejected))
	log.Debug("[dropper] files dropped")

	if s.MaxFilesReached() {
		s.AddValidationMessage(NewValidationMessage(s.texts.DropZoneMaximum, SeverityWarning))
		return nil
	}

	var others []string
	for _, r := range rejected {
		if r.File == nil {
			continue
		}
		if s.maxSize > 0 && r.File.Size() > s.maxSize {
			s.AddValidationMessage(NewValidationMessage(s.texts.RejectedSize(r.File.Name(), s.maxSize), SeverityWarning))
			continue
		}
		others = append(others, r.File.Name())
	}
	if len(others) > 0 {
		s.AddValidationMessage(NewValidationMessage(s.texts.Rejected(others), SeverityWarning))
	}

	var added []*File
	maxReached := false
	for _, raw := range accepted {
		if s.MaxFilesReached() {
			if !maxReached {
				s.AddValidationMessage(NewValidationMessage(s.texts.DropZoneMaximum, SeverityWarning))
				maxReached = true
			}
			continue
		}
		if f := s.AddFile(ctx, raw); f != nil {
			added = append(added, f)
		}
	}
	return added
}
