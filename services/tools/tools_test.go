package tools_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"unicode/utf8"

	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/services/tools"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func params(args string) types.ToolParams {
	p := types.ToolParams{}
	Expect(p.Read(args)).To(Succeed())
	return p
}

var _ = Describe("Available", func() {
	It("assembles the full research tool set", func() {
		available := tools.Available(map[string]map[string]string{})
		Expect(available).To(HaveLen(4))
		Expect(available.Find(tools.SearchToolName)).ToNot(BeNil())
		Expect(available.Find(tools.MapToolName)).ToNot(BeNil())
		Expect(available.Find(tools.ExtractToolName)).ToNot(BeNil())
		Expect(available.Find(tools.ThinkToolName)).ToNot(BeNil())
		Expect(available.Find("no_such_tool")).To(BeNil())
	})
})

var _ = Describe("ThinkTool", func() {
	var think *tools.ThinkTool

	BeforeEach(func() {
		think = tools.NewThink()
	})

	It("records the reflection and the sufficiency decision", func() {
		result, err := think.Run(context.Background(), params(`{"reflection":"found the population, capital still missing","sufficient":false}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Result).To(ContainSubstring("Reflection recorded"))
		Expect(result.Metadata[tools.MetadataNote]).To(Equal("found the population, capital still missing"))
		Expect(result.Metadata[tools.MetadataSufficient]).To(Equal(false))
	})

	It("carries a positive sufficiency decision", func() {
		result, err := think.Run(context.Background(), params(`{"reflection":"all criteria covered","sufficient":true}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Metadata[tools.MetadataSufficient]).To(Equal(true))
	})

	It("rejects an empty reflection", func() {
		_, err := think.Run(context.Background(), params(`{"reflection":"","sufficient":true}`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ExtractTool", func() {
	It("extracts pages as text and reports failures per URL, in request order", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/ok":
				fmt.Fprint(w, `<html><body><h1>Rome</h1><p>Capital of Italy.</p></body></html>`)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		extract := tools.NewExtract(map[string]string{})
		result, err := extract.Run(context.Background(),
			params(fmt.Sprintf(`{"urls":["%s/ok","%s/missing"]}`, server.URL, server.URL)))
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Result).To(ContainSubstring("Capital of Italy."))
		Expect(result.Result).To(ContainSubstring("extraction failed: unexpected status code: 404"))
		// ordered sections, one per requested URL
		okIdx := len("## " + server.URL + "/ok")
		Expect(result.Result[:okIdx]).To(Equal("## " + server.URL + "/ok"))
		Expect(result.Metadata[tools.MetadataExtractedUrls]).To(Equal([]string{server.URL + "/ok"}))
		Expect(result.Metadata[tools.MetadataFailedUrls]).To(Equal([]string{server.URL + "/missing"}))
	})

	It("truncates long pages at the configured limit", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html><body><p>")
			for i := 0; i < 500; i++ {
				fmt.Fprint(w, "again and again ")
			}
			fmt.Fprint(w, "</p></body></html>")
		}))
		defer server.Close()

		extract := tools.NewExtract(map[string]string{"max_chars": "600"})
		result, err := extract.Run(context.Background(), params(fmt.Sprintf(`{"urls":["%s"]}`, server.URL)))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Result).To(ContainSubstring("[content truncated]"))
	})

	It("truncates on a rune boundary for multi-byte content", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html><body><p>")
			for i := 0; i < 200; i++ {
				fmt.Fprint(w, "研究資料")
			}
			fmt.Fprint(w, "</p></body></html>")
		}))
		defer server.Close()

		// the limit falls mid-rune for three-byte characters
		extract := tools.NewExtract(map[string]string{"max_chars": "100"})
		result, err := extract.Run(context.Background(), params(fmt.Sprintf(`{"urls":["%s"]}`, server.URL)))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Result).To(ContainSubstring("[content truncated]"))
		Expect(utf8.ValidString(result.Result)).To(BeTrue())
	})

	It("rejects an empty URL list", func() {
		extract := tools.NewExtract(map[string]string{})
		_, err := extract.Run(context.Background(), params(`{"urls":[]}`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("MapTool", func() {
	It("discovers pages from the sitemap first", func() {
		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/sitemap.xml" {
				fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
	<url><loc>%s/a</loc></url>
	<url><loc>%s/b</loc></url>
</urlset>`, server.URL, server.URL)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		mapper := tools.NewMap(map[string]string{})
		result, err := mapper.Run(context.Background(), params(fmt.Sprintf(`{"url":"%s"}`, server.URL)))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Result).To(ContainSubstring("Discovered 2 internal pages"))
		Expect(result.Metadata[tools.MetadataUrls]).To(Equal([]string{server.URL + "/a", server.URL + "/b"}))
	})

	It("falls back to scanning same-host links when no sitemap exists", func() {
		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/" {
				fmt.Fprintf(w, `<html><body>
					<a href="%s/internal">internal</a>
					<a href="https://elsewhere.example.com/page">external</a>
					<a href="%s/internal">duplicate</a>
				</body></html>`, server.URL, server.URL)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		mapper := tools.NewMap(map[string]string{})
		result, err := mapper.Run(context.Background(), params(fmt.Sprintf(`{"url":"%s/"}`, server.URL)))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Metadata[tools.MetadataUrls]).To(Equal([]string{server.URL + "/internal"}))
	})

	It("caps discovery at the configured limit", func() {
		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/sitemap.xml" {
				fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
				for i := 0; i < 10; i++ {
					fmt.Fprintf(w, "<url><loc>%s/p%d</loc></url>", server.URL, i)
				}
				fmt.Fprint(w, `</urlset>`)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		mapper := tools.NewMap(map[string]string{"max_urls": "3"})
		result, err := mapper.Run(context.Background(), params(fmt.Sprintf(`{"url":"%s"}`, server.URL)))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Metadata[tools.MetadataUrls]).To(HaveLen(3))
	})

	It("returns a friendly result when nothing is discovered", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		mapper := tools.NewMap(map[string]string{})
		result, err := mapper.Run(context.Background(), params(fmt.Sprintf(`{"url":"%s"}`, server.URL)))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Result).To(ContainSubstring("No internal pages discovered"))
	})

	It("rejects an invalid base URL", func() {
		mapper := tools.NewMap(map[string]string{})
		_, err := mapper.Run(context.Background(), params(`{"url":"not a url"}`))
		Expect(err).To(HaveOccurred())
	})
})
