package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/option"
)

// geminiRequest is the part of a generateContent request body the tests look at
type geminiRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MimeType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

func geminiReply(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
	}
}

var _ = Describe("Gemini", func() {
	var (
		server    *ghttp.Server
		imagePath string
		result    Result
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		imagePath = filepath.Join(GinkgoT().TempDir(), "receipt.png")
		Expect(os.WriteFile(imagePath, []byte("fake png bytes"), 0644)).To(Succeed())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		extractor, err := NewGemini("test-key", "gemini-test", 0, nil, option.WithEndpoint(server.URL()))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(extractor.Close)
		result = extractor.Analyze(context.Background(), imagePath)
	})

	When("the model returns a receipt", func() {
		var (
			captured geminiRequest
			apiKey   string
		)

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1beta/models/gemini-test:generateContent"),
				func(w http.ResponseWriter, r *http.Request) {
					apiKey = r.URL.Query().Get("key")
					body, err := io.ReadAll(r.Body)
					Expect(err).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &captured)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, geminiReply(
					"```json\n{\"type\":\"receipt\",\"data\":{\"store_name\":\"Acme\",\"total_amount\":12.5,\"transaction_date\":\"2024-01-01\"}}\n```",
				)),
			))
		})

		It("should return a receipt result", func() {
			Expect(result.Kind).To(Equal(KindReceipt))
			Expect(result.Fields).To(HaveKeyWithValue("store_name", "Acme"))
			Expect(result.Fields).To(HaveKeyWithValue("total_amount", "12.5"))
		})

		It("should send the image with its full MIME type", func() {
			Expect(captured.Contents).To(HaveLen(1))
			parts := captured.Contents[0].Parts
			Expect(parts).To(HaveLen(2))
			Expect(parts[0].InlineData).NotTo(BeNil())
			Expect(parts[0].InlineData.MimeType).To(Equal("image/png"))
			Expect(parts[0].InlineData.Data).To(Equal(base64.StdEncoding.EncodeToString([]byte("fake png bytes"))))
			Expect(parts[1].Text).To(Equal(analysisPrompt))
		})

		It("should cap the reply length", func() {
			Expect(captured.GenerationConfig.MaxOutputTokens).To(Equal(defaultMaxTokens))
		})

		It("should authenticate with the key", func() {
			Expect(apiKey).To(Equal("test-key"))
		})
	})

	When("the model returns no candidates", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"candidates": []any{}}))
		})

		It("should return an error result", func() {
			Expect(result.Kind).To(Equal(KindError))
			Expect(result.Message()).To(ContainSubstring("no response from gemini"))
		})
	})

	When("the API rejects the request", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusBadRequest, map[string]any{
				"error": map[string]any{"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"},
			}))
		})

		It("should return an error result", func() {
			Expect(result.Kind).To(Equal(KindError))
			Expect(result.Message()).To(ContainSubstring("API key not valid"))
		})
	})
})

var _ = Describe("NewGemini", func() {
	It("should refuse to start without a key", func() {
		_, err := NewGemini("", "", 0, nil)
		Expect(err).To(MatchError(ErrMissingAPIKey))
	})
})
