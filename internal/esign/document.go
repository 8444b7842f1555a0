// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package esign

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
)

// SignedDocument is the combined signed PDF of a completed envelope.
type SignedDocument struct {
	Content  []byte
	FileName string
}

// Document downloads the combined signed document. The envelope must be
// completed; checking that first is up to the caller. Failures other than
// authentication are *DocumentRetrievalError.
func (c *Client) Document(ctx context.Context, envelopeID string) (*SignedDocument, error) {
	if strings.TrimSpace(envelopeID) == "" {
		return nil, &DocumentRetrievalError{BodyExcerpt: "envelope id is required"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.envelopesURL(envelopeID, "documents", "combined"), nil)
	if err != nil {
		return nil, &DocumentRetrievalError{EnvelopeID: envelopeID, Err: fmt.Errorf("build document request: %w", err)}
	}
	req.Header.Set("Accept", "application/pdf")

	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DocumentRetrievalError{EnvelopeID: envelopeID, Err: fmt.Errorf("download document: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxExcerpt))
		return nil, &DocumentRetrievalError{EnvelopeID: envelopeID, Status: resp.StatusCode, BodyExcerpt: excerpt(body)}
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DocumentRetrievalError{EnvelopeID: envelopeID, Status: resp.StatusCode, Err: fmt.Errorf("read document: %w", err)}
	}

	doc := &SignedDocument{
		Content:  content,
		FileName: DocumentFileName(envelopeID, resp.Header.Get("Content-Disposition")),
	}

	slog.Info("signed document retrieved",
		"envelope_id", envelopeID,
		"file_name", doc.FileName,
		"bytes", len(doc.Content),
	)

	return doc, nil
}

// DocumentFileName derives the file name from a Content-Disposition header,
// falling back to "envelope-<id>.pdf".
func DocumentFileName(envelopeID, disposition string) string {
	if name := filenameFromDisposition(disposition); name != "" {
		return name
	}
	return fmt.Sprintf("envelope-%s.pdf", envelopeID)
}

func filenameFromDisposition(disposition string) string {
	if strings.TrimSpace(disposition) == "" {
		return ""
	}

	var name string
	_, params, err := mime.ParseMediaType(disposition)
	switch {
	case err == nil && !strings.Contains(disposition, `\`):
		name = params["filename"]
	default:
		// Unquoted names with spaces are rejected by ParseMediaType, and
		// Windows paths would lose their separators to quoted-pair escaping.
		lower := strings.ToLower(disposition)
		if i := strings.Index(lower, "filename="); i >= 0 {
			name = disposition[i+len("filename="):]
			if j := strings.Index(name, ";"); j >= 0 {
				name = name[:j]
			}
		}
	}

	name = strings.Trim(strings.TrimSpace(name), `"'`)
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
