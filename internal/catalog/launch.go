package catalog

// LaunchDocuments returns the listings the storefront opens with, in listing order.
func LaunchDocuments() []Document {
	return []Document{
		{
			ID:           "1",
			Title:        "Giải Tích 1 - Full Công Thức",
			Description:  "Tổng hợp toàn bộ công thức giải tích 1 kèm ví dụ minh họa dễ hiểu.",
			Price:        50,
			AuthorName:   "MinhDev",
			DocType:      DocTypeNotes,
			Tags:         []string{"#Toan", "#DaiHoc"},
			AISummary:    "Bí kíp qua môn Giải Tích dễ dàng.",
			ThumbnailURL: "https://picsum.photos/seed/math/400/300",
			Rating:       4.5,
			Binding:      Unbound(),
		},
		{
			ID:           "2",
			Title:        "Lịch Sử Đảng - Đề Trắc Nghiệm",
			Description:  "Bộ 500 câu hỏi trắc nghiệm ôn thi cuối kỳ có đáp án chi tiết.",
			Price:        80,
			AuthorName:   "LanAnh",
			DocType:      DocTypeExam,
			Tags:         []string{"#LichSu", "#TracNghiem"},
			AISummary:    "Ngân hàng câu hỏi trắc nghiệm đầy đủ nhất.",
			ThumbnailURL: "https://picsum.photos/seed/history/400/300",
			Rating:       4.8,
			Binding:      Unbound(),
		},
		{
			ID:           "3",
			Title:        "Slide Thuyết Trình Kỹ Năng Mềm",
			Description:  "Slide Powerpoint thiết kế đẹp, hiện đại về chủ đề Giao tiếp.",
			Price:        120,
			AuthorName:   "DesignPro",
			DocType:      DocTypeSlide,
			Tags:         []string{"#SoftSkills", "#PPT"},
			AISummary:    "Mẫu slide ấn tượng cho bài thuyết trình nhóm.",
			ThumbnailURL: "https://picsum.photos/seed/ppt/400/300",
			Rating:       5.0,
			Binding:      Unbound(),
		},
	}
}
