package export

import (
	"context"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Store
		ctx     context.Context
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		ctx = context.Background()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename string
			data     []byte
			savedKey string
			err      error
		)

		BeforeEach(func() {
			filename = "test.jpg"
			data = []byte("test file content")
		})

		JustBeforeEach(func() {
			savedKey, err = storage.Save(ctx, filename, data)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the key", func() {
				Expect(savedKey).To(Equal(filename))
			})

			It("should save the file to disk", func() {
				Expect(filepath.Join(tmpDir, filename)).To(BeAnExistingFile())
			})
		})

		When("the name escapes the directory", func() {
			BeforeEach(func() {
				filename = "../outside.jpg"
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid storage key")))
				Expect(filepath.Join(tmpDir, "..", "outside.jpg")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		When("the file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save(ctx, "a.jpg", []byte("content"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the content", func() {
				data, err := storage.Get(ctx, "a.jpg")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("content"))
			})
		})

		When("the file does not exist", func() {
			It("returns the error", func() {
				_, err := storage.Get(ctx, "missing.jpg")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			_, err := storage.Save(ctx, "a.jpg", []byte("content"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should remove the file", func() {
			Expect(storage.Delete(ctx, "a.jpg")).To(Succeed())
			Expect(filepath.Join(tmpDir, "a.jpg")).NotTo(BeAnExistingFile())
		})

		It("returns the error for a missing file", func() {
			Expect(storage.Delete(ctx, "missing.jpg")).NotTo(Succeed())
		})
	})
})

var _ = Describe("S3Storage", func() {
	var (
		server  *ghttp.Server
		storage *S3Storage
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewServer()
		var err error
		storage, err = NewS3Storage(ctx, S3Config{
			Bucket:    "labels",
			Region:    "us-east-1",
			Endpoint:  server.URL(),
			AccessKey: "test-access",
			SecretKey: "test-secret",
			Prefix:    "/exports/",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("should require a bucket", func() {
		_, err := NewS3Storage(ctx, S3Config{Region: "us-east-1"})
		Expect(err).To(MatchError(ContainSubstring("bucket is required")))
	})

	Describe("Save", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPut, "/labels/exports/a.jpg"),
				ghttp.VerifyContentType("image/jpeg"),
				ghttp.RespondWith(http.StatusOK, nil),
			))
		})

		It("should put the object under the prefix", func() {
			key, err := storage.Save(ctx, "a.jpg", []byte("jpeg bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("a.jpg"))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Describe("Get", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/labels/exports/a.jpg"),
				ghttp.RespondWith(http.StatusOK, "jpeg bytes"),
			))
		})

		It("should return the object body", func() {
			data, err := storage.Get(ctx, "a.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("jpeg bytes"))
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodDelete, "/labels/exports/a.jpg"),
				ghttp.RespondWith(http.StatusNoContent, nil),
			))
		})

		It("should delete the object", func() {
			Expect(storage.Delete(ctx, "a.jpg")).To(Succeed())
		})
	})

	It("should reject keys with separators before calling S3", func() {
		_, err := storage.Save(ctx, "a/b.jpg", []byte("x"))
		Expect(err).To(MatchError(ContainSubstring("invalid storage key")))
		Expect(server.ReceivedRequests()).To(BeEmpty())
	})
})
