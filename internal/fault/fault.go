// Package fault defines the error taxonomy shared by every soupstore layer.
//
// All engine failures surface as *Error carrying a Code. Callers test for a
// category either with the Is* helpers or with errors.Is against the
// exported sentinels, both of which see through %w wrapping.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes an engine error.
type Code string

const (
	// CodeSoupNotFound indicates the soup name is not registered.
	CodeSoupNotFound Code = "SOUP_NOT_FOUND"

	// CodeDuplicateSoup indicates a soup was re-registered with different index specs.
	CodeDuplicateSoup Code = "DUPLICATE_SOUP"

	// CodeRecordNotFound indicates an entry id does not exist in the soup.
	CodeRecordNotFound Code = "RECORD_NOT_FOUND"

	// CodeBlobMissing indicates a record is flagged externalized but its blob is gone.
	CodeBlobMissing Code = "BLOB_MISSING"

	// CodeAuthentication indicates the passphrase does not open the store.
	CodeAuthentication Code = "AUTHENTICATION"

	// CodeConnectionClosed indicates use of a closed store handle.
	CodeConnectionClosed Code = "CONNECTION_CLOSED"

	// CodeSchemaIntegrity indicates physical structures disagree with registry metadata.
	CodeSchemaIntegrity Code = "SCHEMA_INTEGRITY"

	// CodeInvalidInput indicates a malformed request (bad index spec, unindexed path, ...).
	CodeInvalidInput Code = "INVALID_INPUT"
)

// Error is the structured error returned by engine operations.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Soup names the affected soup, if any.
	Soup string

	// Table names the affected physical table, if any.
	Table string

	// EntryID identifies the affected record (0 when not applicable).
	EntryID int64

	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. They match any *Error with the same Code.
var (
	ErrSoupNotFound     = &Error{Code: CodeSoupNotFound}
	ErrDuplicateSoup    = &Error{Code: CodeDuplicateSoup}
	ErrRecordNotFound   = &Error{Code: CodeRecordNotFound}
	ErrBlobMissing      = &Error{Code: CodeBlobMissing}
	ErrAuthentication   = &Error{Code: CodeAuthentication}
	ErrConnectionClosed = &Error{Code: CodeConnectionClosed}
	ErrSchemaIntegrity  = &Error{Code: CodeSchemaIntegrity}
	ErrInvalidInput     = &Error{Code: CodeInvalidInput}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(string(e.Code))
	if e.Message != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Message)
	}

	var ctx []string
	if e.Soup != "" {
		ctx = append(ctx, "soup="+e.Soup)
	}
	if e.Table != "" {
		ctx = append(ctx, "table="+e.Table)
	}
	if e.EntryID != 0 {
		ctx = append(ctx, fmt.Sprintf("id=%d", e.EntryID))
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&buf, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&buf, ": %v", e.Err)
	}
	return buf.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Code, which makes the sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsSoupNotFound reports whether err is a SOUP_NOT_FOUND error.
func IsSoupNotFound(err error) bool { return CodeOf(err) == CodeSoupNotFound }

// IsDuplicateSoup reports whether err is a DUPLICATE_SOUP error.
func IsDuplicateSoup(err error) bool { return CodeOf(err) == CodeDuplicateSoup }

// IsRecordNotFound reports whether err is a RECORD_NOT_FOUND error.
func IsRecordNotFound(err error) bool { return CodeOf(err) == CodeRecordNotFound }

// IsBlobMissing reports whether err is a BLOB_MISSING error.
func IsBlobMissing(err error) bool { return CodeOf(err) == CodeBlobMissing }

// IsAuthentication reports whether err is an AUTHENTICATION error.
func IsAuthentication(err error) bool { return CodeOf(err) == CodeAuthentication }

// IsConnectionClosed reports whether err is a CONNECTION_CLOSED error.
func IsConnectionClosed(err error) bool { return CodeOf(err) == CodeConnectionClosed }

// IsInvalidInput reports whether err is an INVALID_INPUT error.
func IsInvalidInput(err error) bool { return CodeOf(err) == CodeInvalidInput }

// IsIntegrity reports whether err signals a data-integrity violation: either
// inconsistent DDL or an externalized record whose blob is gone.
func IsIntegrity(err error) bool {
	code := CodeOf(err)
	return code == CodeSchemaIntegrity || code == CodeBlobMissing
}

// SoupNotFound creates a SOUP_NOT_FOUND error.
func SoupNotFound(soup string) *Error {
	return &Error{Code: CodeSoupNotFound, Message: "soup is not registered", Soup: soup}
}

// DuplicateSoup creates a DUPLICATE_SOUP error.
func DuplicateSoup(soup string) *Error {
	return &Error{
		Code:    CodeDuplicateSoup,
		Message: "soup already registered with different index specs",
		Soup:    soup,
	}
}

// RecordNotFound creates a RECORD_NOT_FOUND error.
func RecordNotFound(soup string, id int64) *Error {
	return &Error{Code: CodeRecordNotFound, Message: "entry does not exist", Soup: soup, EntryID: id}
}

// BlobMissing creates a BLOB_MISSING error.
func BlobMissing(table string, id int64, cause error) *Error {
	return &Error{
		Code:    CodeBlobMissing,
		Message: "externalized entry has no blob",
		Table:   table,
		EntryID: id,
		Err:     cause,
	}
}

// Authentication creates an AUTHENTICATION error.
func Authentication(path string) *Error {
	return &Error{Code: CodeAuthentication, Message: fmt.Sprintf("wrong passphrase for %s", path)}
}

// ConnectionClosed creates a CONNECTION_CLOSED error.
func ConnectionClosed() *Error {
	return &Error{Code: CodeConnectionClosed, Message: "store handle is closed"}
}

// SchemaIntegrity creates a SCHEMA_INTEGRITY error for table.
func SchemaIntegrity(table string, format string, args ...any) *Error {
	return &Error{Code: CodeSchemaIntegrity, Message: fmt.Sprintf(format, args...), Table: table}
}

// Invalid creates an INVALID_INPUT error.
func Invalid(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// WithSoup returns a copy of e annotated with the soup name.
func (e *Error) WithSoup(soup string) *Error {
	cp := *e
	cp.Soup = soup
	return &cp
}
