package acquire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"concursobot/internal/filter"
	"concursobot/internal/model"
)

type mockTransport struct {
	body        string
	contentType string
	statusCode  int
	err         error
	lastRequest *http.Request
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	h := http.Header{}
	if m.contentType != "" {
		h.Set("Content-Type", m.contentType)
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Header:     h,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

// routeTransport serves a fixed body per URL and 404 for anything else.
type routeTransport struct {
	mu        sync.Mutex
	pages     map[string]string
	requested []string
}

func (rt *routeTransport) Do(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	u := req.URL.String()
	rt.requested = append(rt.requested, u)
	body, ok := rt.pages[u]
	status := http.StatusOK
	if !ok {
		body, status = "not found", http.StatusNotFound
	}
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (rt *routeTransport) requests() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.requested...)
}

func TestFetcherGet(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
		wantBody  string
		wantErr   bool
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: "<html></html>", statusCode: 200, contentType: "text/html"},
			wantBody:  "<html></html>",
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFetcher(tt.transport)
			page, err := f.Get(context.Background(), "https://example.com/page")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantBody, string(page.Body)); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("ConcursoBot/1.0", tt.transport.lastRequest.Header.Get("User-Agent")); diff != "" {
				t.Errorf("user agent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

const flatPage = `<html><head><title> Concursos da Marinha </title></head><body>
<p id="exam">Data da prova: 15/12/2024</p>
<div class="news">
  <div class="item"><span class="date">14/10/2024</span><a href="/editais/cp-2024.pdf">Edital CP 2024</a></div>
  <div class="item"><span class="date">10/10/2024</span><a href="https://cdn.example.org/aviso.pdf">Aviso de retificação</a></div>
  <div class="item"><span class="date">09/10/2024</span></div>
</div>
</body></html>`

func TestHTMLFlat(t *testing.T) {
	h := NewHTML(nil, "https://marinha.example.org/concursos/index.html", HTMLSpec{
		Item:   "div.item",
		Title:  "a",
		Date:   "span.date",
		Fields: map[string]string{"exam_date": "#exam"},
	}, nil)

	got, err := h.Parse(&Page{Body: []byte(flatPage), ContentType: "text/html; charset=utf-8"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := &model.Acquisition{
		Title: "Concursos da Marinha",
		URL:   "https://marinha.example.org/concursos/index.html",
		Records: model.RecordSet{
			Shape: model.ShapeFlat,
			Records: []model.Record{
				{Date: "14/10/2024", Title: "Edital CP 2024", URL: "https://marinha.example.org/editais/cp-2024.pdf"},
				{Date: "10/10/2024", Title: "Aviso de retificação", URL: "https://cdn.example.org/aviso.pdf"},
			},
		},
		Fields: map[string]string{"exam_date": "Data da prova: 15/12/2024"},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

const dayPage = `<html><head><title>PCI</title></head><body>
<div id="list">
  <h3 class="day">14/10/2024</h3>
  <ul>
    <li><a href="/c/1">Prefeitura de Contagem</a><p>Nível médio</p></li>
    <li><a href="/c/2">Tribunal de Justiça</a><p>Nível superior</p></li>
  </ul>
  <h3 class="day">11/10/2024</h3>
  <ul>
    <li><a href="/c/3">Prefeitura de Betim</a><p>Estágio</p></li>
  </ul>
</div>
</body></html>`

func TestHTMLSingleKey(t *testing.T) {
	h := NewHTML(nil, "https://pci.example.org/mg", HTMLSpec{
		Item:   "#list li",
		Title:  "a",
		Detail: "p",
		Groups: []string{"h3.day"},
	}, nil)

	got, err := h.Parse(&Page{Body: []byte(dayPage)})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := model.RecordSet{
		Shape: model.ShapeSingleKey,
		Groups: []model.Group{
			{Key: "14/10/2024", Records: []model.Record{
				{Title: "Prefeitura de Contagem", URL: "https://pci.example.org/c/1", Detail: "Nível médio"},
				{Title: "Tribunal de Justiça", URL: "https://pci.example.org/c/2", Detail: "Nível superior"},
			}},
			{Key: "11/10/2024", Records: []model.Record{
				{Title: "Prefeitura de Betim", URL: "https://pci.example.org/c/3", Detail: "Estágio"},
			}},
		},
	}
	if diff := cmp.Diff(want, got.Records, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMLFiltersDropEmptyGroups(t *testing.T) {
	rules := []filter.Rule{
		{Kind: filter.Include, Scope: filter.ScopeTitle, Value: "prefeitura"},
		{Kind: filter.Exclude, Scope: filter.ScopeDetail, Value: "estágio"},
	}
	h := NewHTML(nil, "https://pci.example.org/mg", HTMLSpec{
		Item:   "#list li",
		Title:  "a",
		Detail: "p",
		Groups: []string{"h3.day"},
	}, rules)

	got, err := h.Parse(&Page{Body: []byte(dayPage)})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := model.RecordSet{
		Shape: model.ShapeSingleKey,
		Groups: []model.Group{
			{Key: "14/10/2024", Records: []model.Record{
				{Title: "Prefeitura de Contagem", URL: "https://pci.example.org/c/1", Detail: "Nível médio"},
			}},
		},
	}
	if diff := cmp.Diff(want, got.Records, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

const racePage = `<html><head><title>Corridas</title></head><body>
<table id="races">
  <tr class="month"><th>Outubro/2024</th></tr>
  <tr class="race"><td class="city">Belo Horizonte</td><td class="date">12/10</td><td><a href="r/1">Corrida da Paz</a></td></tr>
  <tr class="race"><td class="city">Contagem</td><td class="date">19/10</td><td><a href="r/2">Night Run</a></td></tr>
  <tr class="race"><td class="city">Belo Horizonte</td><td class="date">26/10</td><td><a href="r/3">Volta da Pampulha</a></td></tr>
  <tr class="month"><th>Novembro/2024</th></tr>
  <tr class="race"><td class="city">Uberlândia</td><td class="date">02/11</td><td><a href="r/4">Meia Maratona</a></td></tr>
</table>
</body></html>`

func TestHTMLTwoLevel(t *testing.T) {
	h := NewHTML(nil, "https://corridas.example.org/mg/", HTMLSpec{
		Item:   "tr.race",
		Title:  "a",
		Date:   "td.date",
		Groups: []string{"tr.month", "td.city"},
	}, nil)

	got, err := h.Parse(&Page{Body: []byte(racePage)})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := model.RecordSet{
		Shape: model.ShapeTwoLevel,
		Groups: []model.Group{
			{Key: "Outubro/2024", Groups: []model.Group{
				{Key: "Belo Horizonte", Records: []model.Record{
					{Date: "12/10", Title: "Corrida da Paz", URL: "https://corridas.example.org/mg/r/1"},
					{Date: "26/10", Title: "Volta da Pampulha", URL: "https://corridas.example.org/mg/r/3"},
				}},
				{Key: "Contagem", Records: []model.Record{
					{Date: "19/10", Title: "Night Run", URL: "https://corridas.example.org/mg/r/2"},
				}},
			}},
			{Key: "Novembro/2024", Groups: []model.Group{
				{Key: "Uberlândia", Records: []model.Record{
					{Date: "02/11", Title: "Meia Maratona", URL: "https://corridas.example.org/mg/r/4"},
				}},
			}},
		},
	}
	if diff := cmp.Diff(want, got.Records, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMLDecodesCharset(t *testing.T) {
	body := []byte("<html><body><div class=\"item\"><a href=\"/x\">Sele\xe7\xe3o p\xfablica</a></div></body></html>")
	h := NewHTML(nil, "https://example.org/", HTMLSpec{Item: "div.item", Title: "a"}, nil)

	got, err := h.Parse(&Page{Body: body, ContentType: "text/html; charset=iso-8859-1"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Records.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got.Records.Records))
	}
	if diff := cmp.Diff("Seleção pública", got.Records.Records[0].Title); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMLAcquireWrapsErrors(t *testing.T) {
	f := NewFetcher(&mockTransport{body: "unavailable", statusCode: 503})
	h := NewHTML(f, "https://example.org/", HTMLSpec{Item: "li"}, nil)

	_, err := h.Acquire(context.Background())
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("expected AcquisitionError, got %v", err)
	}
	if diff := cmp.Diff("https://example.org/", acqErr.URL); diff != "" {
		t.Errorf("url mismatch (-want +got):\n%s", diff)
	}
}

func TestFetcherRejectsOversizedBody(t *testing.T) {
	f := NewFetcher(&mockTransport{body: "0123456789", statusCode: 200})
	f.maxBody = 10
	if _, err := f.Get(context.Background(), "https://example.org/"); err != nil {
		t.Fatalf("body at the limit: %v", err)
	}

	f.maxBody = 9
	_, err := f.Get(context.Background(), "https://example.org/")
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

const maintenancePage = `<html><head><title>Manutenção</title></head><body><h1>Site em manutenção</h1></body></html>`

func TestHTMLPageWithoutItems(t *testing.T) {
	spec := HTMLSpec{Item: "div.item", Title: "a"}

	t.Run("parse", func(t *testing.T) {
		h := NewHTML(nil, "https://example.org/", spec, nil)
		_, err := h.Parse(&Page{Body: []byte(maintenancePage)})
		if !errors.Is(err, ErrNoItems) {
			t.Fatalf("expected ErrNoItems, got %v", err)
		}
	})

	t.Run("acquire", func(t *testing.T) {
		f := NewFetcher(&mockTransport{body: maintenancePage, statusCode: 200})
		_, err := NewHTML(f, "https://example.org/", spec, nil).Acquire(context.Background())
		var acqErr *AcquisitionError
		if !errors.As(err, &acqErr) || !errors.Is(err, ErrNoItems) {
			t.Fatalf("expected AcquisitionError wrapping ErrNoItems, got %v", err)
		}
	})

	t.Run("allowed", func(t *testing.T) {
		allow := spec
		allow.AllowEmpty = true
		got, err := NewHTML(nil, "https://example.org/", allow, nil).Parse(&Page{Body: []byte(maintenancePage)})
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if !got.Records.Empty() {
			t.Errorf("expected no records, got %+v", got.Records)
		}
	})

	t.Run("filtered out is not empty", func(t *testing.T) {
		rules := []filter.Rule{{Kind: filter.Include, Scope: filter.ScopeTitle, Value: "nothing matches this"}}
		got, err := NewHTML(nil, "https://example.org/", HTMLSpec{Item: "div.item", Title: "a"}, rules).
			Parse(&Page{Body: []byte(flatPage)})
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if !got.Records.Empty() {
			t.Errorf("expected every record filtered out, got %+v", got.Records)
		}
	})
}

func newsPage(next string, days ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Notícias</title></head><body><div id=\"news\">")
	for _, d := range days {
		day, title, _ := strings.Cut(d, "|")
		b.WriteString(`<h2 class="day">` + day + `</h2><ul><li><a href="/n/` + strings.ReplaceAll(title, " ", "-") + `">` + title + `</a></li></ul>`)
	}
	b.WriteString("</div>")
	if next != "" {
		b.WriteString(`<a class="next" href="` + next + `">Próxima</a>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestHTMLPaginatesUntilMaxGroups(t *testing.T) {
	rt := &routeTransport{pages: map[string]string{
		"https://pci.example.org/noticias/":  newsPage("/noticias/2", "14/10/2024|TRT", "13/10/2024|TJMG"),
		"https://pci.example.org/noticias/2": newsPage("/noticias/3", "13/10/2024|CEMIG", "12/10/2024|UFMG"),
		"https://pci.example.org/noticias/3": newsPage("", "11/10/2024|Copasa"),
	}}
	h := NewHTML(NewFetcher(rt), "https://pci.example.org/noticias/", HTMLSpec{
		Item:      "#news li",
		Title:     "a",
		Groups:    []string{"h2.day"},
		Next:      "a.next",
		MaxGroups: 3,
	}, nil)

	got, err := h.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	want := model.RecordSet{
		Shape: model.ShapeSingleKey,
		Groups: []model.Group{
			{Key: "14/10/2024", Records: []model.Record{{Title: "TRT", URL: "https://pci.example.org/n/TRT"}}},
			{Key: "13/10/2024", Records: []model.Record{
				{Title: "TJMG", URL: "https://pci.example.org/n/TJMG"},
				{Title: "CEMIG", URL: "https://pci.example.org/n/CEMIG"},
			}},
			{Key: "12/10/2024", Records: []model.Record{{Title: "UFMG", URL: "https://pci.example.org/n/UFMG"}}},
		},
	}
	if diff := cmp.Diff(want, got.Records, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	wantReqs := []string{"https://pci.example.org/noticias/", "https://pci.example.org/noticias/2"}
	if diff := cmp.Diff(wantReqs, rt.requests()); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMLMaxPagesAndLimit(t *testing.T) {
	rt := &routeTransport{pages: map[string]string{
		"https://pci.example.org/1": newsPage("/2", "14/10/2024|A", "13/10/2024|B"),
		"https://pci.example.org/2": newsPage("/3", "12/10/2024|C"),
	}}
	h := NewHTML(NewFetcher(rt), "https://pci.example.org/1", HTMLSpec{
		Item:     "#news li",
		Title:    "a",
		Groups:   []string{"h2.day"},
		Next:     "a.next",
		MaxPages: 1,
	}, nil)
	got, err := h.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if diff := cmp.Diff(2, len(got.Records.Groups)); diff != "" {
		t.Errorf("group count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, len(rt.requests())); diff != "" {
		t.Errorf("request count mismatch (-want +got):\n%s", diff)
	}

	one := NewHTML(nil, "https://pci.example.org/1", HTMLSpec{
		Item: "#news li", Title: "a", Groups: []string{"h2.day"}, MaxGroups: 1,
	}, nil)
	parsed, err := one.Parse(&Page{Body: []byte(rt.pages["https://pci.example.org/1"])})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var keys []string
	for _, g := range parsed.Records.Groups {
		keys = append(keys, g.Key)
	}
	if diff := cmp.Diff([]string{"14/10/2024"}, keys); diff != "" {
		t.Errorf("group keys mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMLFollowMatchesKeywords(t *testing.T) {
	rt := &routeTransport{pages: map[string]string{
		"https://pci.example.org/noticias/": newsPage("",
			"14/10/2024|Concurso CEMIG", "14/10/2024|Concurso Prefeitura", "13/10/2024|Estágio TRT"),
		"https://pci.example.org/n/Concurso-CEMIG": `<html><body><nav>telecom</nav>
			<div itemprop="articleBody">Vagas para Engenharia Elétrica e Automação.</div></body></html>`,
		"https://pci.example.org/n/Concurso-Prefeitura": `<html><body><nav>telecom</nav>
			<div itemprop="articleBody">Vagas para professor.</div></body></html>`,
	}}
	rules := []filter.Rule{{Kind: filter.Exclude, Scope: filter.ScopeTitle, Value: "estágio"}}
	h := NewHTML(NewFetcher(rt), "https://pci.example.org/noticias/", HTMLSpec{
		Item:   "#news li",
		Title:  "a",
		Groups: []string{"h2.day"},
		Follow: &FollowSpec{
			Content:  `div[itemprop="articleBody"]`,
			Keywords: []string{"eletrica", "telecom", "automacao"},
		},
	}, rules)

	got, err := h.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	want := model.RecordSet{
		Shape: model.ShapeSingleKey,
		Groups: []model.Group{
			{Key: "14/10/2024", Records: []model.Record{{
				Title:    "Concurso CEMIG",
				URL:      "https://pci.example.org/n/Concurso-CEMIG",
				Keywords: "eletrica, automacao",
			}}},
		},
	}
	if diff := cmp.Diff(want, got.Records, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	for _, u := range rt.requests() {
		if strings.Contains(u, "TRT") {
			t.Errorf("excluded record was followed: %s", u)
		}
	}
}

func TestHTMLFollowFailureFailsAcquisition(t *testing.T) {
	rt := &routeTransport{pages: map[string]string{
		"https://pci.example.org/noticias/": newsPage("", "14/10/2024|Concurso CEMIG"),
	}}
	h := NewHTML(NewFetcher(rt), "https://pci.example.org/noticias/", HTMLSpec{
		Item:   "#news li",
		Title:  "a",
		Groups: []string{"h2.day"},
		Follow: &FollowSpec{Keywords: []string{"eletrica"}},
	}, nil)

	_, err := h.Acquire(context.Background())
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("expected AcquisitionError, got %v", err)
	}
}

func TestFold(t *testing.T) {
	if diff := cmp.Diff("engenharia eletrica e automacao", fold("Engenharia Elétrica e AUTOMAÇÃO")); diff != "" {
		t.Errorf("fold mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMLSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    HTMLSpec
		wantErr bool
	}{
		{name: "valid flat", spec: HTMLSpec{Item: "li"}},
		{name: "valid two level", spec: HTMLSpec{Item: "li", Groups: []string{"h2", "h3"}}},
		{name: "missing item", spec: HTMLSpec{}, wantErr: true},
		{name: "too many groups", spec: HTMLSpec{Item: "li", Groups: []string{"a", "b", "c"}}, wantErr: true},
		{name: "blank group", spec: HTMLSpec{Item: "li", Groups: []string{" "}}, wantErr: true},
		{name: "paginated", spec: HTMLSpec{Item: "li", Groups: []string{"h2"}, Next: "a.next", MaxGroups: 5}},
		{name: "negative pages", spec: HTMLSpec{Item: "li", MaxPages: -1}, wantErr: true},
		{name: "max groups without groups", spec: HTMLSpec{Item: "li", MaxGroups: 2}, wantErr: true},
		{name: "follow without keywords", spec: HTMLSpec{Item: "li", Follow: &FollowSpec{Content: "div"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Concursos Abertos</title>
  <link>https://feed.example.org/</link>
  <description>Novos editais</description>
  <item>
    <title>Edital Prefeitura de Sabará</title>
    <link>https://feed.example.org/1</link>
    <description>&lt;p&gt;Inscrições &lt;b&gt;abertas&lt;/b&gt;&lt;/p&gt;</description>
    <pubDate>Mon, 14 Oct 2024 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Edital Câmara de Nova Lima</title>
    <link>https://feed.example.org/2</link>
    <pubDate>Mon, 14 Oct 2024 08:30:00 +0000</pubDate>
  </item>
  <item>
    <title>Resultado final TJMG</title>
    <link>https://feed.example.org/3</link>
    <pubDate>Fri, 11 Oct 2024 18:00:00 +0000</pubDate>
  </item>
</channel>
</rss>`

func TestFeedFlat(t *testing.T) {
	f := NewFeed(nil, "https://feed.example.org/rss", FeedSpec{}, nil, time.UTC)

	got, err := f.Parse(&Page{Body: []byte(sampleFeed)})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := &model.Acquisition{
		Title: "Concursos Abertos",
		URL:   "https://feed.example.org/",
		Records: model.RecordSet{
			Shape: model.ShapeFlat,
			Records: []model.Record{
				{Date: "14/10/2024", Title: "Edital Prefeitura de Sabará", URL: "https://feed.example.org/1", Detail: "Inscrições abertas"},
				{Date: "14/10/2024", Title: "Edital Câmara de Nova Lima", URL: "https://feed.example.org/2"},
				{Date: "11/10/2024", Title: "Resultado final TJMG", URL: "https://feed.example.org/3"},
			},
		},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestFeedGroupByDay(t *testing.T) {
	rules := []filter.Rule{{Kind: filter.Include, Scope: filter.ScopeTitle, Value: "edital"}}
	f := NewFeed(nil, "https://feed.example.org/rss", FeedSpec{GroupByDay: true}, rules, time.UTC)

	got, err := f.Parse(&Page{Body: []byte(sampleFeed)})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := model.RecordSet{
		Shape: model.ShapeSingleKey,
		Groups: []model.Group{
			{Key: "14/10/2024", Records: []model.Record{
				{Date: "14/10/2024", Title: "Edital Prefeitura de Sabará", URL: "https://feed.example.org/1", Detail: "Inscrições abertas"},
				{Date: "14/10/2024", Title: "Edital Câmara de Nova Lima", URL: "https://feed.example.org/2"},
			}},
		},
	}
	if diff := cmp.Diff(want, got.Records, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestFeedInvalid(t *testing.T) {
	f := NewFeed(NewFetcher(&mockTransport{body: "not xml at all", statusCode: 200}), "https://feed.example.org/rss", FeedSpec{}, nil, nil)

	_, err := f.Acquire(context.Background())
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("expected AcquisitionError, got %v", err)
	}
}

func TestFeedWithoutItems(t *testing.T) {
	empty := `<?xml version="1.0"?><rss version="2.0"><channel><title>Vazio</title></channel></rss>`

	_, err := NewFeed(nil, "https://feed.example.org/rss", FeedSpec{}, nil, time.UTC).Parse(&Page{Body: []byte(empty)})
	if !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}

	got, err := NewFeed(nil, "https://feed.example.org/rss", FeedSpec{AllowEmpty: true}, nil, time.UTC).Parse(&Page{Body: []byte(empty)})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.Records.Empty() {
		t.Errorf("expected no records, got %+v", got.Records)
	}
}

func TestSummaryTruncates(t *testing.T) {
	long := bytes.Repeat([]byte("ç"), maxDetail+10)
	got := summary(string(long))
	if diff := cmp.Diff(maxDetail+3, len([]rune(got))); diff != "" {
		t.Errorf("summary length mismatch (-want +got):\n%s", diff)
	}
}
