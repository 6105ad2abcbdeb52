package storage

import "errors"

// ErrJournalClosed is returned when recording to a closed journal
var ErrJournalClosed = errors.New("trade journal is closed")
