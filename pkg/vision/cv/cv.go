// Package cv 提供图像匹配功能
//
// 支持以下匹配方法:
//   - 旋转模板匹配 (Rotated Template Matching)
//   - 模板匹配 (Template Matching)
//   - 多尺度模板匹配 (Multi-Scale Template Matching)
//   - SIFT 特征点匹配
//
// 基本用法:
//
//	// 在相机图像中查找元件模板
//	pos, err := cv.FindLocation("camera.png", "part.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("找到位置: (%d, %d)\n", pos.X, pos.Y)
//
//	// 使用自定义选项
//	pos, err := cv.FindLocation("camera.png", "part.png",
//	    cv.WithTemplateThreshold(0.5),
//	    cv.WithTemplateRotateStep(10),
//	)
package cv
