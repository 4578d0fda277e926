package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/snapsort/internal/intake"
	"github.com/zombor/snapsort/internal/records"
	"github.com/zombor/snapsort/internal/scanning"
	"github.com/zombor/snapsort/internal/session"
	"github.com/zombor/snapsort/internal/web"
)

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func pngImage(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Integration", func() {
	var (
		tempDir    string
		provider   *ghttp.Server
		app        *ghttp.Server
		db         *records.SQLite
		storage    *intake.LocalStorage
		controller *session.Controller
		cancel     context.CancelFunc
		runExited  chan struct{}
	)

	request := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, app.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	getSnapshot := func() session.Snapshot {
		resp := request("GET", "/api/session", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var snap session.Snapshot
		Expect(json.NewDecoder(resp.Body).Decode(&snap)).To(Succeed())
		return snap
	}

	upload := func(filename string, data []byte) session.Snapshot {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp := request("POST", "/api/session/upload", &buf, writer.FormDataContentType())
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
		var snap session.Snapshot
		Expect(json.NewDecoder(resp.Body).Decode(&snap)).To(Succeed())
		return snap
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		provider = ghttp.NewServer()

		var err error
		db, err = records.NewSQLite(filepath.Join(tempDir, "db", "records.db"))
		Expect(err).NotTo(HaveOccurred())
		storage = intake.NewLocalStorage(filepath.Join(tempDir, "uploads"))

		extractor, err := scanning.NewOpenAI(scanning.OpenAIConfig{
			APIKey:  "test-key",
			BaseURL: provider.URL() + "/v1",
			Timeout: 5 * time.Second,
		}, nil)
		Expect(err).NotTo(HaveOccurred())

		controller = session.New(storage, extractor, db, nil)
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		runExited = make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(runExited)
			Expect(controller.Run(ctx)).To(Succeed())
		}()

		server := web.NewServer(controller, db, storage, web.BasicAuth{})
		app = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT"} {
			app.RouteToHandler(method, regexp.MustCompile(".*"), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		app.Close()
		cancel()
		Eventually(runExited).Should(BeClosed())
		provider.Close()
		db.Close()
	})

	When("the model recognizes a receipt", func() {
		BeforeEach(func() {
			provider.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion(
					"```json\n{\"type\":\"receipt\",\"data\":{\"store_name\":\"Acme\",\"total_amount\":\"12.50\",\"transaction_date\":\"2024-01-01\"}}\n```",
				)),
			))
		})

		It("should stage, save and list the receipt", func() {
			uploaded := upload("receipt.png", pngImage(700, 350))
			Expect(uploaded.ImagePath).To(HavePrefix(storage.Dir()))

			Eventually(func() session.State { return getSnapshot().State }).Should(Equal(session.StateReviewing))
			snap := getSnapshot()
			Expect(snap.Kind).To(Equal(scanning.KindReceipt))
			Expect(snap.Fields[0]).To(Equal(session.Field{Name: "store_name", Label: "상호명", Value: "Acme"}))

			preview := request("GET", "/api/session/preview", nil, "")
			Expect(preview.StatusCode).To(Equal(http.StatusOK))
			img, format, err := image.Decode(preview.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(format).To(Equal("jpeg"))
			Expect(img.Bounds().Dx()).To(Equal(350))
			Expect(img.Bounds().Dy()).To(Equal(175))

			resp := request("PUT", "/api/session/memo", strings.NewReader(`{"memo":"lunch"}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = request("POST", "/api/session/commit", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(getSnapshot().State).To(Equal(session.StateIdle))

			resp = request("GET", "/api/receipts", nil, "")
			var receipts []records.ReceiptRecord
			Expect(json.NewDecoder(resp.Body).Decode(&receipts)).To(Succeed())
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].StoreName).To(Equal("Acme"))
			Expect(receipts[0].Memo).To(Equal("lunch"))
			Expect(receipts[0].ImagePath).To(Equal(uploaded.ImagePath))

			resp = request("POST", "/api/session/commit", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	When("the provider fails", func() {
		BeforeEach(func() {
			provider.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/chat/completions"),
				ghttp.RespondWith(http.StatusInternalServerError, "upstream unavailable"),
			))
		})

		It("should show the failure and save nothing", func() {
			upload("card.png", pngImage(20, 20))

			Eventually(func() session.State { return getSnapshot().State }).Should(Equal(session.StateReviewing))
			snap := getSnapshot()
			Expect(snap.Kind).To(Equal(scanning.KindError))
			Expect(snap.Error).To(ContainSubstring("status 500"))
			Expect(snap.CanCommit).To(BeFalse())

			resp := request("POST", "/api/session/commit", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))

			receipts, err := db.ListReceipts(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(BeEmpty())
			cards, err := db.ListBusinessCards(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(cards).To(BeEmpty())

			resp = request("POST", "/api/session/discard", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(getSnapshot().State).To(Equal(session.StateIdle))
		})
	})

	When("the file is not an image", func() {
		It("should reject the upload", func() {
			var buf bytes.Buffer
			writer := multipart.NewWriter(&buf)
			part, err := writer.CreateFormFile("file", "notes.txt")
			Expect(err).NotTo(HaveOccurred())
			part.Write([]byte("hello"))
			Expect(writer.Close()).To(Succeed())

			resp := request("POST", "/api/session/upload", &buf, writer.FormDataContentType())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(getSnapshot().State).To(Equal(session.StateIdle))
			Expect(provider.ReceivedRequests()).To(BeEmpty())
		})
	})
})
