package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

var verificationTemplate = template.Must(template.New("verification").Parse(`<!doctype html>
<html>
<body>
<p>Use this code to verify {{.Address}}:</p>
<p style="font-size:24px;letter-spacing:4px"><strong>{{.Code}}</strong></p>
<p>The code expires in {{.Minutes}} minutes. If you did not request it, ignore this message.</p>
</body>
</html>
`))

// Verification is the content of an email verification message.
type Verification struct {
	Address string
	Code    string
	Minutes int
}

// VerificationMessage renders the verification email for v.
func VerificationMessage(v Verification) (Message, error) {
	var buf bytes.Buffer
	if err := verificationTemplate.Execute(&buf, v); err != nil {
		return Message{}, fmt.Errorf("render verification mail: %w", err)
	}
	return Message{
		To:      v.Address,
		Subject: "Your verification code",
		HTML:    buf.String(),
	}, nil
}
