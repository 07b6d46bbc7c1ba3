package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	exifundefined "github.com/dsoprea/go-exif/v3/undefined"
	jis "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// ErrNoComment is returned by ReadUserComment when the image carries no
// UserComment tag.
var ErrNoComment = errors.New("no user comment in image")

const (
	exifIfdPath    = "IFD/Exif"
	userCommentTag = "UserComment"
)

// parseJPEG splits a JPEG into its segments.
func parseJPEG(data []byte) (*jis.SegmentList, error) {
	jmp := jis.NewJpegMediaParser()
	intfc, err := jmp.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parsing JPEG: %w", err)
	}
	sl, ok := intfc.(*jis.SegmentList)
	if !ok {
		return nil, fmt.Errorf("parsing JPEG: unexpected media context %T", intfc)
	}
	return sl, nil
}

// rootBuilder returns a builder seeded with the image's existing EXIF, or an
// empty one when the image has none.
func rootBuilder(sl *jis.SegmentList) (*exif.IfdBuilder, error) {
	if _, _, err := sl.FindExif(); err == nil {
		rootIb, err := sl.ConstructExifBuilder()
		if err != nil {
			return nil, fmt.Errorf("reading existing EXIF: %w", err)
		}
		return rootIb, nil
	}

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("creating IFD mapping: %w", err)
	}
	ti := exif.NewTagIndex()
	return exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}

// embedUserComment writes comment into the Exif UserComment tag of a JPEG,
// keeping every other tag. data is not modified.
func embedUserComment(data []byte, comment string) ([]byte, error) {
	sl, err := parseJPEG(data)
	if err != nil {
		return nil, err
	}

	rootIb, err := rootBuilder(sl)
	if err != nil {
		return nil, err
	}

	exifIb, err := exif.GetOrCreateIbFromRootIb(rootIb, exifIfdPath)
	if err != nil {
		return nil, fmt.Errorf("getting Exif IFD: %w", err)
	}

	uc := exifundefined.Tag9286UserComment{
		EncodingType:  exifundefined.TagUndefinedType_9286_UserComment_Encoding_ASCII,
		EncodingBytes: []byte(comment),
	}
	if err := exifIb.SetStandardWithName(userCommentTag, uc); err != nil {
		return nil, fmt.Errorf("setting user comment: %w", err)
	}

	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("updating EXIF segment: %w", err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadUserComment returns the Exif UserComment embedded in a JPEG.
func ReadUserComment(data []byte) (string, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return "", ErrNoComment
		}
		return "", fmt.Errorf("locating EXIF: %w", err)
	}

	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return "", fmt.Errorf("reading EXIF: %w", err)
	}
	for _, tag := range tags {
		if tag.TagName != userCommentTag {
			continue
		}
		switch uc := tag.Value.(type) {
		case exifundefined.Tag9286UserComment:
			return strings.TrimRight(string(uc.EncodingBytes), "\x00"), nil
		case *exifundefined.Tag9286UserComment:
			return strings.TrimRight(string(uc.EncodingBytes), "\x00"), nil
		}
		return "", fmt.Errorf("unexpected user comment value %T", tag.Value)
	}
	return "", ErrNoComment
}
