package profileurl_test

import (
	"errors"
	"testing"

	"github.com/ham-and/social-graph-2802/internal/profileurl"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expected      string
		expectedError error
	}{
		{
			name:     "already canonical",
			input:    "https://soundcloud.com/ham-and",
			expected: "https://soundcloud.com/ham-and",
		},
		{
			name:     "missing scheme",
			input:    "soundcloud.com/ham-and",
			expected: "https://soundcloud.com/ham-and",
		},
		{
			name:     "http scheme preserved",
			input:    "http://soundcloud.com/ham-and",
			expected: "http://soundcloud.com/ham-and",
		},
		{
			name:     "trailing slash stripped",
			input:    "https://soundcloud.com/ham-and/",
			expected: "https://soundcloud.com/ham-and",
		},
		{
			name:     "repeated trailing slashes stripped",
			input:    "https://soundcloud.com/ham-and///",
			expected: "https://soundcloud.com/ham-and",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  soundcloud.com/ham-and \n",
			expected: "https://soundcloud.com/ham-and",
		},
		{
			name:          "empty input rejected",
			input:         "",
			expectedError: profileurl.ErrEmptyProfileURL,
		},
		{
			name:          "whitespace only rejected",
			input:         "   \t",
			expectedError: profileurl.ErrEmptyProfileURL,
		},
		{
			name:          "slashes only rejected",
			input:         "///",
			expectedError: profileurl.ErrEmptyProfileURL,
		},
		{
			name:          "scheme relative rejected",
			input:         "//soundcloud.com/ham-and",
			expectedError: profileurl.ErrSchemeRelativeProfileURL,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			normalized, err := profileurl.Normalize(testCase.input)
			if testCase.expectedError != nil {
				if !errors.Is(err, testCase.expectedError) {
					t.Fatalf("expected error %v, got %v", testCase.expectedError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if normalized != testCase.expected {
				t.Fatalf("normalized = %q, want %q", normalized, testCase.expected)
			}
		})
	}
}
