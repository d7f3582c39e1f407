// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import "errors"

var (
	// ErrUnsupportedParameterShape is returned for a constructor parameter
	// form the extractor cannot render, such as one with a default value.
	ErrUnsupportedParameterShape = errors.New("extract: unsupported parameter shape")

	// ErrUnsupportedTypeExpression is returned for a type annotation kind
	// the extractor cannot render, such as a function or literal type.
	ErrUnsupportedTypeExpression = errors.New("extract: unsupported type expression")

	// ErrUnsupportedDeclarationShape is returned when an export wrapper
	// wraps something that is neither a class nor an ordinary declaration.
	ErrUnsupportedDeclarationShape = errors.New("extract: unsupported declaration shape")

	// ErrFileNotFound is returned by ExtractFile when the entry file is missing.
	ErrFileNotFound = errors.New("extract: file not found")

	// ErrReadFailed wraps FileSource read failures for import targets.
	ErrReadFailed = errors.New("extract: read failed")
)
