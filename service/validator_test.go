package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-agent/config"
	"lms-agent/model"
)

func testValidator() *InputValidator {
	return NewInputValidator(
		config.ServerConfig{MaxBodyBytes: 1024},
		config.ValidationConfig{MaxMessageLength: 200, MaxRepeatedRun: 20},
	)
}

func fieldsOf(res model.BodyValidation) map[string]string {
	out := make(map[string]string)
	for _, fe := range res.Errors {
		out[fe.Field] = fe.Message
	}
	return out
}

func TestValidateAcceptsWellFormedBody(t *testing.T) {
	res := testValidator().Validate([]byte(`{"message":"enroll sarah@x.com in Excel","userId":"42","userRole":"power_user"}`))

	require.True(t, res.Success)
	require.NotNil(t, res.Request)
	assert.Equal(t, "enroll sarah@x.com in Excel", res.Request.Message)
	assert.Equal(t, "power_user", res.Request.UserRole)
}

func TestValidateRejectsStructuralProblems(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
		msg   string
	}{
		{"empty body", "", "body", "request body is required"},
		{"malformed json", `{"message":`, "body", "malformed JSON"},
		{"not an object", `["hello"]`, "body", "must be a JSON object"},
		{"missing message", `{"userId":"1"}`, "message", "is required"},
		{"blank message", `{"message":"   "}`, "message", "must not be blank"},
		{"wrong type", `{"message":42}`, "message", "must be a string"},
		{"unknown role", `{"message":"hi","userRole":"root"}`, "userRole", "must be one of: superadmin, power_user, user_manager, user"},
		{"long message", `{"message":"` + strings.Repeat("ab ", 100) + `"}`, "message", "must be at most 200 characters"},
		{"oversize payload", `{"message":"` + strings.Repeat("a ", 600) + `"}`, "body", "payload exceeds 1024 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := testValidator().Validate([]byte(tt.body))
			require.False(t, res.Success)
			assert.Equal(t, tt.msg, fieldsOf(res)[tt.field])
		})
	}
}

func TestValidateItemisesEveryField(t *testing.T) {
	res := testValidator().Validate([]byte(`{"message":"","userRole":"nobody","userId":"` + strings.Repeat("x", 200) + `"}`))

	require.False(t, res.Success)
	fields := fieldsOf(res)
	assert.Contains(t, fields, "message")
	assert.Contains(t, fields, "userRole")
	assert.Contains(t, fields, "userId")
}

func TestValidateSecurityThreats(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want model.ThreatKind
	}{
		{"script tag", "<script>alert(1)</script>", model.ThreatXSS},
		{"encoded script", "&lt;script&gt;alert(1)&lt;/script&gt;", model.ThreatXSS},
		{"event handler", `<div onload="steal()">`, model.ThreatXSS},
		{"javascript url", "click javascript:alert(1)", model.ThreatXSS},
		{"union select", "courses' UNION SELECT password FROM users", model.ThreatSQLInjection},
		{"tautology", "find user ' or '1'='1", model.ThreatSQLInjection},
		{"drop table", "search courses; DROP TABLE users", model.ThreatSQLInjection},
		{"comment", "admin'--", model.ThreatSQLInjection},
		{"stacked delete", "x'; DELETE FROM users WHERE 1=1", model.ThreatSQLInjection},
		{"delete where", "delete from enrollments where id = 3", model.ThreatSQLInjection},
		{"insert values", "insert into users values (1, 'x')", model.ThreatSQLInjection},
		{"drop terminated", "drop table if exists users;", model.ThreatSQLInjection},
		{"dot dot slash", "open ../../etc/passwd", model.ThreatPathTraversal},
		{"encoded traversal", "file=%2e%2e%2fsecret", model.ThreatPathTraversal},
		{"flooding", "help" + strings.Repeat("!", 30), model.ThreatFlooding},
	}

	v := testValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateSecurity(tt.msg)
			assert.False(t, res.Safe)
			assert.Contains(t, res.ThreatsDetected, tt.want)
		})
	}
}

func TestValidateSecuritySafeMessages(t *testing.T) {
	v := testValidator()
	for _, msg := range []string{
		"enroll sarah@x.com in Excel course",
		"Remove John O'Neil from Advanced Excel",
		"show enrollment stats for course 1234",
		"what can you do?",
		"search learning plans about onboarding",
		"enroll sarah in Drop Table Tennis Basics",
		"enroll john in Drop Table Tennis",
		"delete from my plan the Excel course",
		"find the \"update your profile\" course",
		"insert into my plan the safety course",
	} {
		res := v.ValidateSecurity(msg)
		assert.True(t, res.Safe, msg)
		assert.Empty(t, res.ThreatsDetected, msg)
		assert.Equal(t, msg, res.SanitizedMessage)
	}
}

func TestSanitizeStripsMarkupAndControl(t *testing.T) {
	assert.Equal(t, "hello world", Sanitize("<b>hello</b>\x00 \x07world"))
	assert.Equal(t, "enroll sarah", Sanitize("  enroll\t\tsarah \n"))
	assert.Equal(t, "", Sanitize("<script>alert(1)</script>"))
	assert.Equal(t, "a & b", Sanitize("a &amp; b"))
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		"<b>bold</b> and <i>italic</i>",
		"&lt;b&gt;escaped&lt;/b&gt;",
		"&amp;lt;script&amp;gt;",
		"tabs\tand\nnewlines\r\n",
		"unicode ✓ café ​ zero width",
		"a < b > c & d",
		"<<script>script>alert(1)<</script>/script>",
		"Tom's \"quoted\" course",
		"a &" + strings.Repeat("amp;", 11) + "lt;b",
		"&am<b>p;lt;script&am<b>p;gt;alert(1)",
		strings.Repeat("&am<i>", 10) + "p;lt;b",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
		assert.NotContains(t, once, "<", "input %q", in)
		assert.NotContains(t, once, ">", "input %q", in)
	}
}

func TestSanitizeDecodesNestedEntities(t *testing.T) {
	nested := "a &" + strings.Repeat("amp;", 11) + "lt;b"

	out := Sanitize(nested)
	assert.NotContains(t, out, "&")
	assert.NotContains(t, out, "<")

	res := testValidator().ValidateSecurity(nested)
	assert.Equal(t, out, res.SanitizedMessage)
}

func TestValidateSecurityNestedEncodedScript(t *testing.T) {
	msg := "&" + strings.Repeat("amp;", 5) + "lt;script&amp;gt;alert(1)"

	res := testValidator().ValidateSecurity(msg)
	assert.False(t, res.Safe)
	assert.Contains(t, res.ThreatsDetected, model.ThreatXSS)
}

func TestLongestRun(t *testing.T) {
	assert.Equal(t, 0, longestRun(""))
	assert.Equal(t, 3, longestRun("aaab"))
	assert.Equal(t, 1, longestRun("a     b"))
	assert.Equal(t, 5, longestRun("hi!!!!!"))
}
