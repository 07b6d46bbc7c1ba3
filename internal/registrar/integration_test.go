package registrar_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/registrar/internal/catalog"
	"github.com/zombor/registrar/internal/codec"
	"github.com/zombor/registrar/internal/export"
	"github.com/zombor/registrar/internal/extraction"
	"github.com/zombor/registrar/internal/registrar"
)

// cannedBackend answers every prompt with the same JSON document
type cannedBackend struct {
	response string
}

func (b *cannedBackend) Generate(_ context.Context, _, _ string, _ extraction.Schema) ([]byte, error) {
	return []byte(b.response), nil
}

func (b *cannedBackend) Close() error {
	return nil
}

func encodeImage(format string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 30), B: uint8(y * 30), A: 255})
		}
	}
	var buf bytes.Buffer
	if format == "png" {
		Expect(png.Encode(&buf, img)).To(Succeed())
	} else {
		Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())
	}
	return buf.Bytes()
}

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		db       *catalog.BoltDB
		store    *export.LocalStorage
		backend  *cannedBackend
		server   *registrar.Server
		ghServer *ghttp.Server
		err      error
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()

		// Initialize real dependencies
		db, err = catalog.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = export.NewLocalStorage(filepath.Join(tempDir, "exports"))
		Expect(err).NotTo(HaveOccurred())

		backend = &cannedBackend{response: "```json\n" + `{"title": "7 Water Lilies", "creation_year": 1906,
			"creator": "Claude Monet", "creditline": "Mr. and Mrs. Martin A. Ryerson Collection",
			"location": "Giverny", "medium": "Oil on canvas", "accession_number": "1933.1157"}` + "\n```"}

		service := registrar.NewService(extraction.NewExtractor(backend), export.NewCoordinator(store), db, store)
		server = registrar.NewServer(service, registrar.BasicAuth{})

		ghServer = ghttp.NewServer()
		ghServer.RouteToHandler(http.MethodGet, "/api/records", server.Handler().ServeHTTP)
	})

	AfterEach(func() {
		if ghServer != nil {
			ghServer.Close()
		}
		if db != nil {
			db.Close()
		}
	})

	It("should extract, correct, export and archive a label", func() {
		handler := server.Handler().ServeHTTP
		ghServer.AppendHandlers(handler, handler, handler)

		// --- Step 1: Extract ---
		resp, err := http.Post(ghServer.URL()+"/api/extract", "application/json",
			strings.NewReader(`{"text": "7 Water Lilies, 1906\nClaude Monet", "latitude": 41.88, "longitude": -87.62}`))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		// --- Step 2: Correct the medium ---
		req, err := http.NewRequest(http.MethodPut, ghServer.URL()+"/api/record/fields/medium",
			strings.NewReader(`{"value": "  Oil on canvas, framed "}`))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		resp, err = http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		// --- Step 3: Export two images ---
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		for name, data := range map[string][]byte{"front.jpg": encodeImage("jpeg"), "detail.png": encodeImage("png")} {
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", `form-data; name="images"; filename="`+name+`"`)
			if strings.HasSuffix(name, ".png") {
				header.Set("Content-Type", "image/png")
			} else {
				header.Set("Content-Type", "image/jpeg")
			}
			part, err := writer.CreatePart(header)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(writer.Close()).To(Succeed())

		resp, err = http.Post(ghServer.URL()+"/api/export", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var exported struct {
			RecordID string `json:"record_id"`
			Results  []struct {
				Image string `json:"image"`
				Key   string `json:"key"`
				OK    bool   `json:"ok"`
			} `json:"results"`
		}
		respBody, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(respBody, &exported)).To(Succeed())
		Expect(exported.RecordID).NotTo(BeEmpty())
		Expect(exported.Results).To(HaveLen(2))

		// --- Step 4: Every stored image carries the corrected record ---
		entry, err := db.GetEntry(exported.RecordID)
		Expect(err).NotTo(HaveOccurred())
		archived, err := entry.Decode()
		Expect(err).NotTo(HaveOccurred())
		Expect(archived.Title).To(Equal("Water Lilies"))
		Expect(archived.Medium).To(Equal("Oil on canvas, framed"))
		Expect(archived.AccessionNumber).To(Equal("1933.1157"))

		expected, err := codec.EncodeCompactString(archived)
		Expect(err).NotTo(HaveOccurred())
		for _, res := range exported.Results {
			Expect(res.OK).To(BeTrue(), res.Image)
			data, err := store.Get(context.Background(), res.Key)
			Expect(err).NotTo(HaveOccurred())
			comment, err := export.ReadUserComment(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(comment).To(Equal(expected))
		}
		Expect(entry.Images).To(ConsistOf(exported.Results[0].Key, exported.Results[1].Key))

		// --- Step 5: The archive lists it ---
		listResp, err := http.Get(ghServer.URL() + "/api/records")
		Expect(err).NotTo(HaveOccurred())
		defer listResp.Body.Close()
		var entries []*catalog.Entry
		listBody, err := io.ReadAll(listResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(listBody, &entries)).To(Succeed())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].ID).To(Equal(exported.RecordID))
	})
})
