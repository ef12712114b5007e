// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package run

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_getURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		url       string
		wantErr   error
		wantBytes []byte
		wantFile  string
	}{
		{
			name:    "empty url returns error",
			url:     "",
			wantErr: ErrGetConfigFile,
		},
		{
			name:    "getter fails",
			url:     "git::http://notexist//file.yaml",
			wantErr: ErrGetConfigFile,
		},
		{
			name:    "missing local file",
			url:     "./testdata/nope.yaml",
			wantErr: ErrGetConfigFile,
		},
		{
			name:      "local file",
			url:       "./testdata/test.txt",
			wantBytes: []byte("this is a test file\n"),
			wantFile:  "test.txt",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data, fileName, err := getURL(context.Background(), tc.url)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, data)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantBytes, data)
			assert.Equal(t, tc.wantFile, fileName)
		})
	}
}

func Test_splitFileNameFromGetterURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		url      string
		wantURL  string
		wantFile string
	}{
		{
			url:      "git::https://github.com/org/lab//experiments/vmin.hcl?ref=v1.2.0",
			wantURL:  "git::https://github.com/org/lab//experiments?ref=v1.2.0",
			wantFile: "vmin.hcl",
		},
		{
			url:      "git::https://github.com/org/lab//vmin.yaml",
			wantURL:  "git::https://github.com/org/lab",
			wantFile: "vmin.yaml",
		},
		{
			url:      "s3::https://s3.amazonaws.com/bucket//dir/",
			wantURL:  "",
			wantFile: "",
		},
		{
			url: "https://example.com/vmin.yaml",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			t.Parallel()

			gotURL, gotFile := splitFileNameFromGetterURL(tc.url)
			assert.Equal(t, tc.wantURL, gotURL)
			assert.Equal(t, tc.wantFile, gotFile)
		})
	}
}
