package cloud

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestClassifyErrorNilIsNil(t *testing.T) {
	if err := classifyError(nil); err != nil {
		t.Errorf("classifyError(nil) = %v, want nil", err)
	}
}

func TestClassifyErrorNoSuchKeyIsNotFound(t *testing.T) {
	err := classifyError(&types.NoSuchKey{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("classifyError(NoSuchKey) = %v, want ErrNotFound", err)
	}
}

func TestClassifyErrorNoSuchBucketIsNotFound(t *testing.T) {
	err := classifyError(&types.NoSuchBucket{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("classifyError(NoSuchBucket) = %v, want ErrNotFound", err)
	}
}

func TestClassifyErrorUnrecognizedIsTransport(t *testing.T) {
	err := classifyError(errors.New("connection reset by peer"))
	if !errors.Is(err, ErrTransport) {
		t.Errorf("classifyError(generic) = %v, want ErrTransport", err)
	}
}
