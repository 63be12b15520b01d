package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"golang.org/x/net/publicsuffix"
)

var _ = Describe("In edgegate gateway", func() {

	It("Gate redirects anonymous page requests to login", func() {
		resp, _ := get(buildClient(), "/keys?tab=active")
		Expect(resp.StatusCode).To(Equal(http.StatusTemporaryRedirect))
		Expect(resp.Header.Get("Location")).To(Equal("/login?next=%2Fkeys%3Ftab%3Dactive&tab=active"))
	})

	It("Gate rejects anonymous api requests", func() {
		resp, message := get(buildClient(), "/api/admin/channels")
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(unmarshalToMap(message)).To(HaveKeyWithValue("message", "Unauthorized"))
	})

	It("Login sets the session cookie and unlocks protected routes", func() {
		client := buildClient()
		resp, message := postJson(client, "/api/auth/login", map[string]string{
			"email":    " ada@example.com ",
			"password": "secret-123",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(unmarshalToMap(message)).To(HaveKeyWithValue("ok", true))
		Expect(sessionCookie(client)).To(Equal("login-session-token-1"))

		resp, message = get(client, "/api/auth/me")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(unmarshalToMap(message)).To(HaveKeyWithValue("email", "ada@example.com"))

		resp, _ = get(client, "/login")
		Expect(resp.StatusCode).To(Equal(http.StatusTemporaryRedirect))
		Expect(resp.Header.Get("Location")).To(Equal("/"))
	})

	It("Login validation failure never reaches the backend", func() {
		resp, message := postJson(buildClient(), "/api/auth/login", map[string]string{
			"email":    "not-an-email",
			"password": "x",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(unmarshalToMap(message)).To(HaveKey("issues"))
	})

	It("Google sign-in completes the round trip", func() {
		client := buildClient()
		resp, _ := get(client, "/api/auth/google?next=%2Fkeys&from=%2Fregister")
		Expect(resp.StatusCode).To(Equal(http.StatusTemporaryRedirect))

		authUrl, err := url.Parse(resp.Header.Get("Location"))
		Expect(err).NotTo(HaveOccurred())
		Expect(authUrl.Host).To(Equal("accounts.example.test"))
		query := authUrl.Query()
		Expect(query.Get("client_id")).To(Equal("google-client-id-1"))
		Expect(query.Get("code_challenge_method")).To(Equal("S256"))
		Expect(query.Get("redirect_uri")).To(Equal(gatewayOrigin + "/api/auth/google/callback"))

		resp, _ = get(client, "/api/auth/google/callback?code=google-auth-code&state="+url.QueryEscape(query.Get("state")))
		Expect(resp.StatusCode).To(Equal(http.StatusTemporaryRedirect))
		Expect(resp.Header.Get("Location")).To(Equal(gatewayOrigin + "/keys"))
		Expect(sessionCookie(client)).To(Equal("oauth-session-token-1"))

		resp, _ = get(client, "/api/auth/me")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("Google callback with a foreign state fails closed", func() {
		client := buildClient()
		resp, _ := get(client, "/api/auth/google?from=%2Fregister")
		Expect(resp.StatusCode).To(Equal(http.StatusTemporaryRedirect))

		before := backendStub.Hits("POST", "/v1/auth/oauth/google")
		resp, _ = get(client, "/api/auth/google/callback?code=google-auth-code&state=forged")
		Expect(resp.StatusCode).To(Equal(http.StatusTemporaryRedirect))
		Expect(resp.Header.Get("Location")).To(Equal(gatewayOrigin + "/login"))
		Expect(sessionCookie(client)).To(BeEmpty())
		Expect(backendStub.Hits("POST", "/v1/auth/oauth/google")).To(Equal(before))
	})

	It("Unlinking a provider invalidates the cached auth methods", func() {
		client := loggedInClient()

		before := backendStub.Hits("GET", "/v1/auth/methods")
		for i := 0; i < 2; i++ {
			resp, message := get(client, "/api/auth/methods")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(unmarshalToMap(message)).To(HaveKeyWithValue("passwordSet", true))
		}
		Expect(backendStub.Hits("GET", "/v1/auth/methods")).To(Equal(before + 1))

		resp, _ := send(client, "DELETE", "/api/auth/oauth/link-1", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp, _ = get(client, "/api/auth/methods")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(backendStub.Hits("GET", "/v1/auth/methods")).To(Equal(before + 2))
	})

	It("Admin channel update is forwarded with the session", func() {
		client := loggedInClient()
		resp, message := send(client, "PATCH", "/api/admin/channels/ch-1", map[string]interface{}{"enabled": false})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(unmarshalToMap(message)).To(HaveKeyWithValue("id", "ch-1"))
	})

	It("Webhook passes the raw body through without a session", func() {
		request, err := http.NewRequest("POST", gatewayOrigin+"/api/webhook/creem", strings.NewReader(`{"event":"paid"}`))
		Expect(err).NotTo(HaveOccurred())
		request.Header.Set("Content-Type", "application/json")
		request.Header.Set("creem-signature", "sig-1")

		resp, message := do(buildClient(), request)
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
		Expect(string(message)).To(Equal("accepted"))
	})

	It("Versioned api is tunnelled to the backend", func() {
		resp, message := get(buildClient(), "/v1/models")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(unmarshalToMap(message)).To(HaveKeyWithValue("object", "list"))
	})
})

func unmarshalToMap(message []byte) map[string]interface{} {
	messageMap := make(map[string]interface{})
	if err := json.Unmarshal(message, &messageMap); err != nil {
		Fail(err.Error())
	}
	return messageMap
}

func get(client *http.Client, path string) (*http.Response, []byte) {
	return send(client, "GET", path, nil)
}

func postJson(client *http.Client, path string, body interface{}) (*http.Response, []byte) {
	return send(client, "POST", path, body)
}

func send(client *http.Client, method string, path string, body interface{}) (*http.Response, []byte) {
	var reader io.Reader
	if body != nil {
		bytesValue, err := json.Marshal(body)
		if err != nil {
			Fail(err.Error())
		}
		reader = bytes.NewReader(bytesValue)
	}
	request, err := http.NewRequest(method, gatewayOrigin+path, reader)
	if err != nil {
		Fail(err.Error())
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return do(client, request)
}

func do(client *http.Client, request *http.Request) (*http.Response, []byte) {
	resp, err := client.Do(request)
	if err != nil {
		Fail(err.Error())
	}
	message, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		Fail(err.Error())
	}
	return resp, message
}

func sessionCookie(client *http.Client) string {
	origin, _ := url.Parse(gatewayOrigin)
	for _, cookie := range client.Jar.Cookies(origin) {
		if cookie.Name == "uai_session" {
			return cookie.Value
		}
	}
	return ""
}

func loggedInClient() *http.Client {
	client := buildClient()
	resp, _ := postJson(client, "/api/auth/login", map[string]string{
		"email":    "ada@example.com",
		"password": "secret-123",
	})
	Expect(resp.StatusCode).To(Equal(http.StatusOK))
	return client
}

// buildClient keeps cookies and stops at the first redirect, so tests can
// inspect Location themselves.
func buildClient() *http.Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		log.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
