package extraction

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		backend *Ollama
		raw     []byte
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		backend, err = NewOllama(server.URL()+"/", "llama3.1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		raw, err = backend.Generate(context.Background(), "instructions", "12 Wave", LabelSchema)
	})

	When("the server answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					var req ollamaChatRequest
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.Model).To(Equal("llama3.1"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[0].Role).To(Equal("system"))
					Expect(req.Messages[0].Content).To(Equal("instructions"))
					Expect(req.Messages[1].Content).To(ContainSubstring("12 Wave"))
					Expect(req.Format).To(HaveKeyWithValue("type", "object"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: ` {"title": "Wave"} `},
					Done:    true,
				}),
			))
		})

		It("should return the message content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(Equal(`{"title": "Wave"}`))
		})
	})

	When("the server returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `model "llama3.1" not found`))
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("status 404"))
			Expect(err.Error()).To(ContainSubstring("not found"))
		})
	})

	When("the server returns an empty message", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{Done: true}))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("empty response")))
		})
	})

	When("the server returns garbage", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `not json`))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("decoding response")))
		})
	})
})

var _ = Describe("Gemini", func() {
	Describe("NewGemini", func() {
		It("should require an API key", func() {
			_, err := NewGemini("", "")
			Expect(err).To(MatchError(ContainSubstring("api key is required")))
		})
	})

	Describe("geminiSchema", func() {
		var schema *genai.Schema

		BeforeEach(func() {
			schema = geminiSchema(LabelSchema)
		})

		It("should describe an object", func() {
			Expect(schema.Type).To(Equal(genai.TypeObject))
		})

		It("should type every field", func() {
			Expect(schema.Properties).To(HaveLen(7))
			Expect(schema.Properties["title"].Type).To(Equal(genai.TypeString))
			Expect(schema.Properties["creation_year"].Type).To(Equal(genai.TypeInteger))
		})

		It("should require every field", func() {
			Expect(schema.Required).To(ConsistOf("title", "creation_year", "creator", "creditline",
				"location", "medium", "accession_number"))
		})
	})

	Describe("responseText", func() {
		It("should join the text parts of the first candidate", func() {
			resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"title":`), genai.Text(`"Wave"}`)}},
			}}}
			text, err := responseText(resp)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"title":"Wave"}`))
		})

		It("returns the error when there are no candidates", func() {
			_, err := responseText(&genai.GenerateContentResponse{})
			Expect(err).To(MatchError(ContainSubstring("no response")))
		})

		It("returns the error when the candidate has no text", func() {
			resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}}},
			}}}
			_, err := responseText(resp)
			Expect(err).To(MatchError(ContainSubstring("empty text")))
		})
	})
})
