package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"

	"github.com/spf13/cast"
)

// ServiceStub is an httptest backend answering from a fixed list of mocks.
// It counts the calls each mock receives.
type ServiceStub struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func CreateServiceStub(mocks []RequestMock) *ServiceStub {
	stub := &ServiceStub{hits: map[string]int{}}
	byUrl := map[string][]RequestMock{}
	var order []string
	for _, mReg := range mocks {
		if _, ok := byUrl[mReg.Request.Url]; !ok {
			order = append(order, mReg.Request.Url)
		}
		byUrl[mReg.Request.Url] = append(byUrl[mReg.Request.Url], mReg)
	}

	mux := http.NewServeMux()
	for _, pattern := range order {
		registered := byUrl[pattern]
		mux.HandleFunc(pattern, func(writer http.ResponseWriter, request *http.Request) {
			for _, mReg := range registered {
				if mReg.Request.Method == request.Method {
					stub.record(request.Method, request.URL.Path)
					mReg.serve(writer, request)
					return
				}
			}
			writer.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = fmt.Fprint(writer, "No mock for method '"+request.Method+"'.")
		})
	}

	stub.Server = httptest.NewServer(mux)
	return stub
}

func (stub *ServiceStub) record(method string, path string) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.hits[method+" "+path]++
}

func (stub *ServiceStub) Hits(method string, path string) int {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return stub.hits[method+" "+path]
}

func (mReg RequestMock) serve(writer http.ResponseWriter, request *http.Request) {
	for _, check := range mReg.Request.Headers {
		header := request.Header.Get(check.Name)
		matched, err := regexp.MatchString(check.Regexp, header)
		if err != nil {
			writer.WriteHeader(500)
			_, _ = fmt.Fprint(writer, "Parsing header regexp error: "+check.Regexp+". Detail: "+err.Error())
			return
		}
		if !matched {
			writer.WriteHeader(400)
			_, _ = fmt.Fprint(writer, "Header not matched regexp. Header: "+header+". Regexp: "+check.Regexp)
			return
		}
	}

	bytes, err := io.ReadAll(request.Body)
	if err != nil {
		writer.WriteHeader(500)
		_, _ = fmt.Fprint(writer, "Reading body error: "+err.Error())
		return
	}

	for _, check := range mReg.Request.Body {
		if err := check.checkBody(bytes, request); err != nil {
			writer.WriteHeader(400)
			_, _ = fmt.Fprint(writer, "Body not match: "+err.Error())
			return
		}
	}

	var bodyBytes []byte
	if mReg.Response.Body != nil {
		bodyBytes, err = mReg.Response.Body.getString()
		if err != nil {
			writer.WriteHeader(500)
			_, _ = fmt.Fprint(writer, "Writing body error: "+err.Error())
			return
		}
	}
	for header, value := range mReg.Response.Headers {
		writer.Header().Add(header, value)
	}
	if _, ok := mReg.Response.Body.(JsonMap); ok && writer.Header().Get("Content-Type") == "" {
		writer.Header().Set("Content-Type", "application/json")
	}
	writer.WriteHeader(mReg.Response.Status)
	_, _ = writer.Write(bodyBytes)
}

type RequestMock struct {
	Request  Request
	Response Response
}

type Header struct {
	Name   string
	Regexp string
}

// JsonPropsBody checks top level fields of a JSON body. Values are compared
// as strings, so 1 and "1" match.
type JsonPropsBody struct {
	Props map[string]interface{}
}

func (check JsonPropsBody) checkBody(body []byte, req *http.Request) error {
	values := map[string]interface{}{}
	if err := json.Unmarshal(body, &values); err != nil {
		return fmt.Errorf("parsing json body error. %v", err.Error())
	}

	for key, expected := range check.Props {
		actual, ok := values[key]
		if !ok {
			return fmt.Errorf("property %v is missing", key)
		}
		if cast.ToString(actual) != cast.ToString(expected) {
			return fmt.Errorf("property %v=%v not match with expected: %v", key, actual, expected)
		}
	}

	return nil
}

// NonEmptyBody requires the listed JSON fields to be present and non-empty.
type NonEmptyBody struct {
	Fields []string
}

func (check NonEmptyBody) checkBody(body []byte, req *http.Request) error {
	values := map[string]interface{}{}
	if err := json.Unmarshal(body, &values); err != nil {
		return fmt.Errorf("parsing json body error. %v", err.Error())
	}
	for _, field := range check.Fields {
		if cast.ToString(values[field]) == "" {
			return fmt.Errorf("property %v is empty", field)
		}
	}
	return nil
}

type Request struct {
	Method  string
	Url     string
	Headers []Header
	Body    []BodyCheck
}

type BodyCheck interface {
	checkBody([]byte, *http.Request) error
}

type StringedBody interface {
	getString() ([]byte, error)
}

type Response struct {
	Status  int
	Headers map[string]string
	Body    StringedBody
}

type JsonMap map[string]interface{}

func (s JsonMap) getString() ([]byte, error) {
	return json.Marshal(s)
}

type TextBody string

func (s TextBody) getString() ([]byte, error) {
	return []byte(s), nil
}
