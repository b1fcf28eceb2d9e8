package handler

import (
	"github.com/msomdec/gallery-manager/internal/domain"
	"github.com/msomdec/gallery-manager/internal/service"
)

// ImageDTO is the JSON form of a gallery image. URL is empty when the file
// is missing on disk.
type ImageDTO struct {
	ID          int64  `json:"id"`
	Src         string `json:"src"`
	URL         string `json:"url"`
	Sort        int64  `json:"sort"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func toImageDTO(gallery *service.GalleryService, img domain.GalleryImage) ImageDTO {
	url, _ := gallery.URL(img)
	return ImageDTO{
		ID:          img.ID,
		Src:         img.Src,
		URL:         url,
		Sort:        img.Sort,
		Name:        img.Name,
		Description: img.Description,
	}
}

func toImageDTOs(gallery *service.GalleryService, images []domain.GalleryImage) []ImageDTO {
	dtos := make([]ImageDTO, len(images))
	for i, img := range images {
		dtos[i] = toImageDTO(gallery, img)
	}
	return dtos
}

// SortDTO is one applied position of an arrange request.
type SortDTO struct {
	ID   int64 `json:"id"`
	Sort int64 `json:"sort"`
}

func toSortDTOs(entries []domain.SortEntry) []SortDTO {
	dtos := make([]SortDTO, len(entries))
	for i, e := range entries {
		dtos[i] = SortDTO{ID: e.ID, Sort: *e.Sort}
	}
	return dtos
}

type deleteRequest struct {
	IDs []int64 `json:"ids"`
}

type rotateRequest struct {
	ID int64 `json:"id"`
}

type imageDataDTO struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type dataRequest struct {
	Photo map[int64]imageDataDTO `json:"photo"`
}
