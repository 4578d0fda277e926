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
)

var _ = Describe("Ollama", func() {
	var (
		server    *ghttp.Server
		imagePath string
		result    Result
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		imagePath = filepath.Join(GinkgoT().TempDir(), "card.png")
		Expect(os.WriteFile(imagePath, []byte("fake png bytes"), 0644)).To(Succeed())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		extractor, err := NewOllama(server.URL()+"/", "llava", 0, nil)
		Expect(err).NotTo(HaveOccurred())
		result = extractor.Analyze(context.Background(), imagePath)
	})

	When("the model returns a business card", func() {
		var captured ollamaChatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				func(w http.ResponseWriter, r *http.Request) {
					body, err := io.ReadAll(r.Body)
					Expect(err).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &captured)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]any{
						"role":    "assistant",
						"content": `{"type":"business_card","data":{"name":"Lee","company":"정보 없음","title":"Engineer","phone":"010","email":"lee@example.test"}}`,
					},
					"done": true,
				}),
			))
		})

		It("should return a business card result", func() {
			Expect(result.Kind).To(Equal(KindBusinessCard))
			Expect(result.Fields).To(HaveKeyWithValue("company", NoData))
		})

		It("should attach the image to the user message", func() {
			Expect(captured.Messages).To(HaveLen(1))
			Expect(captured.Messages[0].Content).To(Equal(analysisPrompt))
			Expect(captured.Messages[0].Images).To(ConsistOf(base64.StdEncoding.EncodeToString([]byte("fake png bytes"))))
		})

		It("should not stream", func() {
			Expect(captured.Stream).To(BeFalse())
		})
	})

	When("the server returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model 'llava' not found"}`))
		})

		It("should return an error result", func() {
			Expect(result.Kind).To(Equal(KindError))
			Expect(result.Message()).To(ContainSubstring("not found"))
		})
	})
})
