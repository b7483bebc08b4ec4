package util

import (
	"io"
	"net/http"
)

// 头像允许的图片类型及落盘扩展名
var avatarTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SniffAvatar 读取文件头判断图片类型并回到文件开头；扩展名由内容决定，不信任上传文件名
func SniffAvatar(file io.ReadSeeker, size int64) (mimeType, ext string, err error) {
	if size > MaxAvatarSize {
		return "", "", ErrFileTooLarge
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", "", err
	}
	mimeType = http.DetectContentType(buffer[:n])

	ext, ok := avatarTypes[mimeType]
	if !ok {
		return mimeType, "", ErrInvalidFileType
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", "", err
	}
	return mimeType, ext, nil
}
