package cad

import (
	"regexp"
	"strings"
)

// ValidationError rejects a generated script before execution.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

var bannedTokens = []string{
	"import os",
	"import sys",
	"import subprocess",
	"import socket",
	"import requests",
	"eval(",
	"exec(",
	"open(",
	"__import__",
}

var fencedCode = regexp.MustCompile("(?is)```(?:python)?\\s*([\\s\\S]*?)```")

// ExtractPythonCode strips a surrounding markdown fence from provider output.
func ExtractPythonCode(text string) string {
	raw := strings.TrimSpace(text)
	if strings.HasPrefix(raw, "```") {
		if m := fencedCode.FindStringSubmatch(raw); m != nil {
			raw = strings.TrimSpace(m[1])
		}
	}
	return raw
}

// ValidateScript screens a generated CadQuery script against the banned-token
// denylist and requires the cadquery import. Case-insensitive, substring
// based; the sandbox is the real boundary, this is an early reject.
func ValidateScript(script string) error {
	lowered := strings.ToLower(script)
	for _, token := range bannedTokens {
		if strings.Contains(lowered, token) {
			return &ValidationError{Detail: "Generated CAD script contains blocked token: " + token}
		}
	}
	if !strings.Contains(lowered, "import cadquery") && !strings.Contains(lowered, "from cadquery") {
		return &ValidationError{Detail: "Generated CAD script is missing CadQuery import."}
	}
	return nil
}
