package filters

import (
	"bytes"
	"net/http"
	templ "text/template"

	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/fetchers"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

const DefaultLogTemplate = "{{.Request.Method}} {{.Request.URL.Path}}"

type LogFilterHandler struct {
	next     *common.RequestHandler
	template *templ.Template
	Name     string
}

func (filter *LogFilterHandler) SetNext(nextHandler common.RequestHandler) {
	filter.next = &nextHandler
}

// Handle starts the request: it assigns the request id, prepares the
// per-request read memo and logs the request line and final status.
func (filter *LogFilterHandler) Handle(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	log = log.WithFields(logrus.Fields{
		"requestId": uuid.NewV4().String(),
		"method":    request.Method,
		"path":      request.URL.Path,
	})
	ctx := fetchers.WithMemo(common.WithLogEntry(request.Context(), log))
	request = request.WithContext(ctx)

	data := struct {
		Request *http.Request
		Filter  *LogFilterHandler
	}{
		request,
		filter,
	}
	var tpl bytes.Buffer
	if err := filter.template.Execute(&tpl, data); err != nil {
		log.Warnf("Log filter error: %v. Template error: %v", filter.Name, err)
	}
	log.Info(tpl.String())

	recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}
	if filter.next != nil {
		(*filter.next).Handle(log, recorder, request)
	} else {
		log.Debugf("Log filter error: %v. Next handler is empty", filter.Name)
	}
	log.WithField("status", recorder.status).Debugf("Request completed")
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (recorder *statusRecorder) WriteHeader(status int) {
	if !recorder.wroteHeader {
		recorder.status = status
		recorder.wroteHeader = true
	}
	recorder.ResponseWriter.WriteHeader(status)
}

func (recorder *statusRecorder) Write(body []byte) (int, error) {
	recorder.wroteHeader = true
	return recorder.ResponseWriter.Write(body)
}

func (recorder *statusRecorder) Flush() {
	if flusher, ok := recorder.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (recorder *statusRecorder) Unwrap() http.ResponseWriter {
	return recorder.ResponseWriter
}

// Factory

func CreateLogFilter(name string, template string, next common.RequestHandler) *LogFilterHandler {
	if template == "" {
		template = DefaultLogTemplate
	}
	parse, err := templ.New(name).Parse(template)
	if err != nil {
		logrus.Warnf("Log filter templ error: %v. Skip filter", err)
		return nil
	}
	filter := &LogFilterHandler{
		Name:     name,
		template: parse,
	}
	if next != nil {
		filter.SetNext(next)
	}
	return filter
}
