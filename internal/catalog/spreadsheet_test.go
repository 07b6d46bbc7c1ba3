package catalog

import (
	"bytes"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/registrar/internal/record"
)

var _ = Describe("WriteXLSX", func() {
	var (
		entries []*Entry
		rows    [][]string
		err     error
	)

	BeforeEach(func() {
		exportedAt := time.Date(2025, 8, 14, 12, 0, 0, 0, time.UTC)
		noPosition := record.New("text", time.Unix(1723636800, 0), nil)
		noPosition.Title = "Untitled"
		bare, newErr := NewEntry("e2", exportedAt, nil, noPosition)
		Expect(newErr).NotTo(HaveOccurred())

		entries = []*Entry{testEntry("e1", exportedAt), bare}
	})

	JustBeforeEach(func() {
		var buf bytes.Buffer
		err = WriteXLSX(entries, &buf)
		if err != nil {
			return
		}
		f, openErr := excelize.OpenReader(&buf)
		Expect(openErr).NotTo(HaveOccurred())
		defer f.Close()
		Expect(f.GetSheetList()).To(Equal([]string{"Records"}))
		rows, err = f.GetRows("Records")
	})

	It("should write the headers in display order", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(rows[0]).To(Equal([]string{
			"ID", "Exported At",
			"title", "creation_year", "creator", "location", "medium", "creditline", "accession_number",
			"Captured At", "Latitude", "Longitude", "Images",
		}))
	})

	It("should write one row per entry", func() {
		Expect(rows).To(HaveLen(3))
		Expect(rows[1][0]).To(Equal("e1"))
		Expect(rows[1][1]).To(Equal("2025-08-14T12:00:00Z"))
		Expect(rows[1][2]).To(Equal("Entry e1"))
		Expect(rows[1][3]).To(Equal("1889"))
		Expect(rows[1][4]).To(Equal("Vincent van Gogh"))
		Expect(rows[1][8]).To(Equal("472.1941"))
		Expect(rows[1][9]).To(Equal("2024-08-14T12:00:00Z"))
		Expect(rows[1][10]).To(Equal("40.78"))
		Expect(rows[1][12]).To(Equal("1"))
	})

	It("should leave absent values blank", func() {
		Expect(rows[2][3]).To(BeEmpty())
		Expect(rows[2][10]).To(BeEmpty())
		Expect(rows[2][11]).To(BeEmpty())
		Expect(rows[2][12]).To(Equal("0"))
	})

	When("an entry does not decode", func() {
		BeforeEach(func() {
			entries = append(entries, &Entry{ID: "broken", Record: json.RawMessage(`{"title":1}`)})
		})

		It("should skip it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))
		})
	})
})
