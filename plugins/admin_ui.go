package plugins

import (
	"bytes"
	"net/http"
	"html/template"

	log "github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/movio/gqlmock"
)

func init() {
	gqlmock.RegisterPlugin(&AdminUIPlugin{})
}

// AdminUIPlugin serves a minimal page listing the open operations.
type AdminUIPlugin struct {
	gqlmock.BasePlugin
	backend  *gqlmock.Backend
	template *template.Template
}

func (p *AdminUIPlugin) ID() string {
	return "admin-ui"
}

func (p *AdminUIPlugin) Init(backend *gqlmock.Backend) {
	tmpl := template.New("admin")
	_, err := tmpl.Parse(htmlTemplate)
	if err != nil {
		log.WithError(err).Fatal("unable to load admin UI page template")
	}

	p.template = tmpl
	p.backend = backend
}

func (p *AdminUIPlugin) SetupPrivateMux(mux *http.ServeMux) {
	mux.HandleFunc("/admin", p.handler)
}

type operation struct {
	ID         string
	Name       string
	ClientName string
	Kind       string
	Query      string
}

type templateVariables struct {
	TestedQuery     string
	TestQueryResult string
	TestQueryKind   string
	TestQueryError  string
	Operations      []operation
}

func (p *AdminUIPlugin) handler(w http.ResponseWriter, r *http.Request) {
	var vars templateVariables

	if testQuery := r.FormValue("query"); testQuery != "" {
		vars.TestedQuery = testQuery
		op, err := gqlmock.NewOperation(gqlmock.NewRequest(testQuery))
		if err != nil {
			vars.TestQueryError = err.Error()
		} else {
			vars.TestQueryResult = formatQuery(op)
			vars.TestQueryKind = op.Kind().String()
		}
	}

	for _, t := range p.backend.Open() {
		op := t.Operation()
		name := op.OperationName
		if name == "" {
			name = "(anonymous)"
		}
		vars.Operations = append(vars.Operations, operation{
			ID:         op.ID,
			Name:       name,
			ClientName: op.ClientName,
			Kind:       op.Kind().String(),
			Query:      formatQuery(op),
		})
	}

	_ = p.template.Execute(w, vars)
}

func formatQuery(op *gqlmock.Operation) string {
	var buf bytes.Buffer
	f := formatter.NewFormatter(&buf)
	f.FormatQueryDocument(op.Document)
	return buf.String()
}

const htmlTemplate = `
<html>

<head>
    <title>Admin</title>
    <style>
        body {
            font-family: arial, serif;
            font-size: 0.9em;
        }

        h2 {
            margin: 20px;
            text-align: center;
            font-weight: normal;
        }

        ul {
            text-align: center;
            margin: auto;
        }

        li.operation {
            text-align: left;
            list-style-type: none;
            display: inline-block;
            box-shadow: 0 4px 8px 0 rgba(0, 0, 0, 0.1), 0 6px 20px 0 rgba(0, 0, 0, 0.1);
            margin: 20px;
            position: relative;
            vertical-align: top;
            width: 500px;
        }

        li.operation .header {
            margin: 0;
            padding: 10px 20px;
            background: #2c5282;
            color: #f0f3f5;
        }

        .kind-other .header,
        .kind-other .title {
            border-left: 5px solid #7ebd6f;
        }

        .kind-subscription .header,
        .kind-subscription .title {
            border-left: 5px solid #bf4e4e;
        }

        .header h3 {
            margin: 0;
            margin-bottom: 10px;
        }

        .header .kind {
            position: absolute;
            right: 10px;
            top: 20px;
        }

        .header .client {
            width: 460px;
            word-wrap: break-word;
            font-size: 0.9em;
        }

        .collapsible {
            display: block;
            background: #f5f2f0;
            padding: 0;
        }

        input[type="checkbox"] {
            display: none;
        }

        .collapsed {
            max-height: 0px;
            width: 100%;
            overflow: hidden;
            border-left: 5px solid silver;
        }

        .collapsible input:checked~.collapsed {
            max-height: 400px;
            overflow: scroll;
            padding: 0;
            margin: 0;
        }

        .collapsible pre {
            padding: 10px;
        }

        .title {
            display: inline-block;
            background: #2a4365;
            color: white;
            width: 495px;
            font-size: 0.9em;
        }

        .title span {
            display: inline-block;
            padding: 10px 20px;
        }

        form {
            text-align: center;
        }

        input[type="submit"] {
            font-size: 1.3em;
            margin: 20px;
        }

        textarea {
            display: block;
            width: 50%;
            min-height: 300px;
            margin: auto;
            font-size: 1.3em;
            padding: 15px;
            line-height: 1.5em;
        }

        div#test-result {
            margin: 20px auto;
            width: 50%;
        }

        p#test-result-error {
            margin: 15px 0;
            font-size: 1.3em;
        }

        .success {
            color: #56a861;
        }

        .error {
            color: #913533;
            font-weight: bold;
        }

        h2 {
            margin-top: 50px;
        }
    </style>
</head>

<body>
    <h2>Open operations</h2>
    <ul>
        {{range .Operations}}
        <li class="operation kind-{{.Kind}}">
            <div class="header">
                <h3>{{.Name}}</h3>
                <div class="kind">{{.Kind}}</div>
                <div class="client">{{.ClientName}}</div>
                <div class="id">{{.ID}}</div>
            </div>
            <label class="collapsible">
                <input type="checkbox" />
                <div class="title"><span>+ Query</span></div>
                <div class="collapsed">
                    <pre>{{.Query}}</pre>
                </div>
            </label>
        </li>
        {{else}}
        <p>No open operations</p>
        {{end}}
    </ul>
    <h2>Check query</h2>
    {{if ne .TestedQuery "" }}
    <div id="test-result">
        {{if eq .TestQueryError ""}}
        <p id="test-result-error" class="success">
            Query parsed successfully ({{.TestQueryKind}} operation)
        </p>
        <label class="collapsible">
            <input type="checkbox" />
            <div class="title"><span>+ Formatted query</span></div>
            <div class="collapsed">
                <pre>{{.TestQueryResult}}</pre>
            </div>
        </label>
        {{else}}
        <p id="test-result-error" class="error">
            {{.TestQueryError}}
        </p>
        {{end}}
    </div>
    {{end}}
    <form method="POST">
        <textarea name="query"
            placeholder="Paste a query here to check how it would be intercepted">{{.TestedQuery}}</textarea>
        <input type="submit" value="Check" />
    </form>
</body>

</html>
`
