package gate

// fakeRequest is a minimal Request implementation for tests that don't need
// a real *http.Request, keeping classifier and flow tests decoupled from
// net/http plumbing.
type fakeRequest struct {
	method   string
	path     string
	headers  map[string]string
	clientIP string
	form     map[string]string
}

func (f *fakeRequest) Method() string { return f.method }
func (f *fakeRequest) Path() string   { return f.path }
func (f *fakeRequest) Header(name string) string {
	if f.headers == nil {
		return ""
	}
	return f.headers[name]
}
func (f *fakeRequest) ClientIP() string { return f.clientIP }
func (f *fakeRequest) FormValue(name string) (string, error) {
	if f.form == nil {
		return "", nil
	}
	return f.form[name], nil
}
